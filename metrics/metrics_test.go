package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/warp/wallet-ledger/ledger"
)

func TestRecorder_LabelsOutcomeByKind(t *testing.T) {
	r := Recorder{}
	okBefore := testutil.ToFloat64(operationsTotal.WithLabelValues("test_op", "ok"))
	ifBefore := testutil.ToFloat64(operationsTotal.WithLabelValues("test_op", "insufficient_funds"))

	r.Observe("test_op", nil, time.Millisecond)
	r.Observe("test_op", fmt.Errorf("wrap: %w", ledger.ErrInsufficientFunds), time.Millisecond)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(operationsTotal.WithLabelValues("test_op", "ok")))
	assert.Equal(t, ifBefore+1, testutil.ToFloat64(operationsTotal.WithLabelValues("test_op", "insufficient_funds")))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(201))
	assert.Equal(t, "4xx", statusClass(422))
	assert.Equal(t, "5xx", statusClass(503))
	assert.Equal(t, "unknown", statusClass(0))
}
