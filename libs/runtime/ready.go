package runtime

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// ReadyCheck is one named dependency probe behind /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

const readyProbeTimeout = 2 * time.Second

// NewBaseMuxWithReady returns a mux preloaded with the liveness and readiness
// endpoints. /healthz answers as long as the process serves; /readyz fails
// when any dependency probe fails and names the ones that did.
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		failed := runChecks(r.Context(), checks)
		if len(failed) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(strings.Join(failed, "; ")))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func runChecks(ctx context.Context, checks []ReadyCheck) []string {
	var failed []string
	for _, c := range checks {
		if c.Check == nil {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, readyProbeTimeout)
		err := c.Check(probeCtx)
		cancel()
		if err != nil {
			name := c.Name
			if name == "" {
				name = "dependency"
			}
			failed = append(failed, name+": "+err.Error())
		}
	}
	return failed
}
