package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-packedserial/board"
	"github.com/arloliu/go-packedserial/directory"
	"github.com/arloliu/go-packedserial/internal/boardsim"
	"github.com/arloliu/go-packedserial/logger"
	"github.com/arloliu/go-packedserial/opcode"
)

type boardList []*board.Board

func (l boardList) Range(fn func(b *board.Board) bool) {
	for _, b := range l {
		if !fn(b) {
			return
		}
	}
}

func readyBoard(t *testing.T, dir board.Directory) *board.Board {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sim := boardsim.New("BoardA", "",
		&boardsim.Thing{
			Type:       opcode.OnOffLight,
			Name:       "Light",
			Properties: []*boardsim.Property{{Type: opcode.Boolean, Name: "on", Value: true}},
		},
	)

	b, err := board.New(ctx, "/dev/ttyUSB0", dir,
		board.WithOpener(sim.Opener(ctx)), board.WithSettleDelay(0), board.WithLogger(logger.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.Open(ctx))

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, b.WaitState(waitCtx, board.Ready))

	return b
}

// gather returns metric values keyed by family name and the first label value.
func gather(t *testing.T, reg *prometheus.Registry) map[string]map[string]float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]map[string]float64)
	for _, mf := range families {
		values := make(map[string]float64)
		for _, m := range mf.GetMetric() {
			key := ""
			for _, lp := range m.GetLabel() {
				key += lp.GetValue() + "/"
			}

			switch {
			case m.GetCounter() != nil:
				values[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[key] = m.GetGauge().GetValue()
			}
		}
		out[mf.GetName()] = values
	}

	return out
}

func TestCollector(t *testing.T) {
	dir := directory.New(context.Background(), directory.WithLogger(logger.NewNop()))
	defer dir.Close()

	b := readyBoard(t, dir)

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(boardList{b}, dir))

	got := gather(t, reg)

	// defineAdapter, defineThingByIdx, definePropertyByIdx, pair
	assert.InDelta(t, 4, got["packedserial_board_frames_sent_total"]["ttyUSB0/"], 0)
	assert.InDelta(t, 4, got["packedserial_board_frames_received_total"]["ttyUSB0/"], 0)
	assert.InDelta(t, 1, got["packedserial_board_things_revealed_total"]["ttyUSB0/"], 0)
	assert.InDelta(t, 1, got["packedserial_board_connects_total"]["ttyUSB0/"], 0)
	assert.InDelta(t, 0, got["packedserial_board_timeouts_total"]["ttyUSB0/"], 0)
	assert.InDelta(t, 1, got["packedserial_board_state"]["ttyUSB0/ready/"], 0)
	assert.InDelta(t, 1, got["packedserial_boards"][""], 0)
	assert.InDelta(t, 1, got["packedserial_directory_things"][""], 0)
	assert.InDelta(t, 0, got["packedserial_directory_mirror_errors_total"][""], 0)
}

func TestCollector_NoDirectory(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(boardList{}, nil))

	got := gather(t, reg)
	assert.InDelta(t, 0, got["packedserial_boards"][""], 0)
	assert.NotContains(t, got, "packedserial_directory_things")
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Requests.WithLabelValues("/things", "200").Inc()
	m.Limited.Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `packedserial_http_requests_total{code="200",route="/things"} 1`)
	assert.Contains(t, body, "packedserial_http_rate_limited_total 1")
	assert.Contains(t, body, "go_goroutines")
}
