package bhavcopy

import (
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DateLayout is the date format substituted into URL and file templates
const DateLayout = "20060102"

// Source is an exchange publishing bhavcopies
type Source string

const (
	SourceNSE Source = "NSE"
	SourceBSE Source = "BSE"
	SourceMCX Source = "MCX"
)

// Segment is a market segment code
type Segment string

const (
	SegmentCM  Segment = "CM"
	SegmentFO  Segment = "FO"
	SegmentCD  Segment = "CD"
	SegmentCOM Segment = "COM"
)

// Schema names the tabular layout of a downloaded file
type Schema string

const (
	SchemaUDiFF   Schema = "udiff"
	SchemaMcxJSON Schema = "mcx_json"
)

// Format is the payload format served by an endpoint
type Format string

const (
	FormatZip  Format = "zip"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

//go:embed profiles.yaml
var defaultProfilesYAML []byte

// SessionProfile describes how to open a session against an exchange
type SessionProfile struct {
	WarmupURLs   []string          `yaml:"warmup_urls" json:"warmup_urls"`
	WarmupDelay  time.Duration     `yaml:"warmup_delay" json:"warmup_delay"`
	Headers      map[string]string `yaml:"headers" json:"headers"`
	BlockMarkers []string          `yaml:"block_markers" json:"block_markers"`
}

// SourceProfile describes one downloadable (source, segment) bhavcopy
type SourceProfile struct {
	Source       Source            `yaml:"source" json:"source"`
	Segment      Segment           `yaml:"segment" json:"segment"`
	Schema       Schema            `yaml:"schema" json:"schema"`
	Format       Format            `yaml:"format" json:"format"`
	Method       string            `yaml:"method" json:"method"`
	URLTemplate  string            `yaml:"url" json:"url"`
	BodyTemplate string            `yaml:"body" json:"body,omitempty"`
	FilePattern  string            `yaml:"file" json:"file,omitempty"`
	Headers      map[string]string `yaml:"headers" json:"headers,omitempty"`
	Session      SessionProfile    `yaml:"-" json:"session"`
}

// Key returns SRC_SGMT
func (p SourceProfile) Key() string {
	return profileKey(p.Source, p.Segment)
}

// URL returns the download URL for date
func (p SourceProfile) URL(date time.Time) string {
	return expand(p.URLTemplate, date)
}

// Body returns the request body for date, empty for GET endpoints
func (p SourceProfile) Body(date time.Time) string {
	return expand(p.BodyTemplate, date)
}

// FileName returns the name of the tabular file inside an archive for date
func (p SourceProfile) FileName(date time.Time) string {
	return expand(p.FilePattern, date)
}

// FlatFileName is the deterministic name used when the payload is not an archive
func (p SourceProfile) FlatFileName(date time.Time) string {
	ext := string(p.Format)
	if p.Format == FormatZip {
		ext = "csv"
	}
	return fmt.Sprintf("BhavCopy_%s_%s_%s.%s", p.Source, p.Segment, date.Format(DateLayout), ext)
}

// SessionHeaders are the browser-like headers sent on warm-up pages
func (p SourceProfile) SessionHeaders() http.Header {
	h := make(http.Header, len(p.Session.Headers))
	for k, v := range p.Session.Headers {
		h.Set(k, v)
	}
	return h
}

// RequestHeaders merges session headers with the profile's own overrides for the data request
func (p SourceProfile) RequestHeaders() http.Header {
	h := p.SessionHeaders()
	for k, v := range p.Headers {
		h.Set(k, v)
	}
	return h
}

func expand(tmpl string, date time.Time) string {
	return strings.ReplaceAll(tmpl, "{date}", date.Format(DateLayout))
}

func profileKey(src Source, sgmt Segment) string {
	return string(src) + "_" + string(sgmt)
}

// Profiles is the registry of configured source profiles
type Profiles struct {
	ordered []SourceProfile
	byKey   map[string]SourceProfile
}

type profilesFile struct {
	Sessions map[Source]SessionProfile `yaml:"sessions"`
	Profiles []SourceProfile           `yaml:"profiles"`
}

// LoadProfiles reads profiles from path, or the built-in set when path is empty
func LoadProfiles(path string) (*Profiles, error) {
	if path == "" {
		return ParseProfiles(defaultProfilesYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read profiles file: %w", err)
	}
	return ParseProfiles(data)
}

// DefaultProfiles returns the built-in profiles
func DefaultProfiles() *Profiles {
	p, err := ParseProfiles(defaultProfilesYAML)
	if err != nil {
		panic("invalid embedded profiles: " + err.Error())
	}
	return p
}

// ParseProfiles decodes and validates a profiles YAML document
func ParseProfiles(data []byte) (*Profiles, error) {
	var doc profilesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("cannot parse profiles YAML: %w", err)
	}

	reg := &Profiles{byKey: make(map[string]SourceProfile, len(doc.Profiles))}
	for i, p := range doc.Profiles {
		p.Source = Source(strings.ToUpper(string(p.Source)))
		p.Segment = Segment(strings.ToUpper(string(p.Segment)))
		if p.Method == "" {
			p.Method = http.MethodGet
		}
		p.Method = strings.ToUpper(p.Method)

		session, ok := doc.Sessions[p.Source]
		if !ok {
			return nil, fmt.Errorf("profile %d (%s): no session defined for source %s", i, p.Key(), p.Source)
		}
		p.Session = session

		if p.URLTemplate == "" {
			return nil, fmt.Errorf("profile %d (%s): url is required", i, p.Key())
		}
		switch p.Schema {
		case SchemaUDiFF, SchemaMcxJSON:
		default:
			return nil, fmt.Errorf("profile %d (%s): unknown schema %q", i, p.Key(), p.Schema)
		}
		switch p.Format {
		case FormatZip:
			if p.FilePattern == "" {
				return nil, fmt.Errorf("profile %d (%s): zip profiles need a file pattern", i, p.Key())
			}
		case FormatCSV, FormatJSON:
		default:
			return nil, fmt.Errorf("profile %d (%s): unknown format %q", i, p.Key(), p.Format)
		}
		if _, dup := reg.byKey[p.Key()]; dup {
			return nil, fmt.Errorf("profile %d: duplicate profile %s", i, p.Key())
		}

		reg.byKey[p.Key()] = p
		reg.ordered = append(reg.ordered, p)
	}

	return reg, nil
}

// Lookup returns the profile for (source, segment)
func (r *Profiles) Lookup(src Source, sgmt Segment) (SourceProfile, bool) {
	p, ok := r.byKey[profileKey(src, sgmt)]
	return p, ok
}

// All returns the profiles in declaration order
func (r *Profiles) All() []SourceProfile {
	out := make([]SourceProfile, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Sources returns the distinct sources in declaration order
func (r *Profiles) Sources() []Source {
	seen := make(map[Source]bool)
	var out []Source
	for _, p := range r.ordered {
		if !seen[p.Source] {
			seen[p.Source] = true
			out = append(out, p.Source)
		}
	}
	return out
}

// ParseSource normalizes and validates a source code
func ParseSource(s string) (Source, error) {
	switch src := Source(strings.ToUpper(strings.TrimSpace(s))); src {
	case SourceNSE, SourceBSE, SourceMCX:
		return src, nil
	}
	return "", newError(KindInvalidInput, "parse source", "unknown source %q", s)
}

// ParseSegment normalizes and validates a segment code
func ParseSegment(s string) (Segment, error) {
	switch sgmt := Segment(strings.ToUpper(strings.TrimSpace(s))); sgmt {
	case SegmentCM, SegmentFO, SegmentCD, SegmentCOM:
		return sgmt, nil
	}
	return "", newError(KindInvalidInput, "parse segment", "unknown segment %q", s)
}
