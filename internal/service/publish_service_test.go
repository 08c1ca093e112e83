package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nsvirk/bhavcopyapi/internal/bhavcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	events []ReloadEvent
}

func (n *recordingNotifier) Notify(_ context.Context, result ReloadResult, err error) {
	n.events = append(n.events, newReloadEvent(result, err))
}

func TestReloadEventEncoding(t *testing.T) {
	result := ReloadResult{
		RunID:     "run-1",
		Date:      "2025-02-10",
		Segment:   "CM",
		Source:    "NSE",
		Success:   true,
		RowErrors: []bhavcopy.RowError{{Line: 4, Reason: "invalid FinInstrmId"}},
	}

	b, err := json.Marshal(newReloadEvent(result, nil))
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Equal(t, true, decoded["success"])
	assert.NotContains(t, decoded, "row_errors")
	assert.NotContains(t, decoded, "error_kind")

	event := newReloadEvent(result, bhavcopy.NewError(bhavcopy.KindFetchFailed, "fetch", nil, "status 503"))
	assert.False(t, event.Success)
	assert.Equal(t, "FetchFailed", event.ErrorKind)
	assert.True(t, event.Retryable)
	assert.Contains(t, event.Message, "status 503")
}

func TestPublishServiceWithoutRedis(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPublishService(nil).Notify(context.Background(), ReloadResult{RunID: "run-1"}, nil)
	})
}

func TestReloadNotifies(t *testing.T) {
	fx := newReloadFixture(t)
	notifier := &recordingNotifier{}
	fx.svc.opts.Notifier = notifier
	fx.fetcher.payloads["BSE_CM"] = bhavCSV("CM", "BSE", "STK,500325,RELIANCE,1269.95,100")
	fx.fetcher.errs["NSE_CM"] = bhavcopy.NewError(bhavcopy.KindBlocked, "fetch", nil, "Access Denied")

	_, err := fx.svc.Reload(context.Background(), bseCM())
	require.NoError(t, err)
	_, err = fx.svc.Reload(context.Background(), ReloadRequest{Date: testDay, Segment: bhavcopy.SegmentCM, Source: bhavcopy.SourceNSE})
	require.Error(t, err)

	require.Len(t, notifier.events, 2)
	assert.True(t, notifier.events[0].Success)
	assert.Equal(t, int64(1), notifier.events[0].Summary.Inserted)
	assert.Equal(t, "Blocked", notifier.events[1].ErrorKind)
}
