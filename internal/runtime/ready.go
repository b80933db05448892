package runtime

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Per-check budget. Kafka's dial check can eat its whole allowance, so checks
// run concurrently to keep /readyz bounded by the slowest dependency, not the
// sum of all three.
const readyCheckTimeout = 2 * time.Second

// ReadyCheck is a named dependency check for /readyz. This service registers
// three: db (hard), and redis and kafka when configured.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

// NewBaseMuxWithReady returns a mux preloaded with /healthz (process up) and
// /readyz (dependencies reachable). Failures list every broken dependency,
// not just the first, in registration order.
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		results := make([]string, len(checks))
		var wg sync.WaitGroup
		for i, check := range checks {
			if check.Check == nil {
				continue
			}
			wg.Add(1)
			go func(i int, check ReadyCheck) {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
				defer cancel()
				if err := check.Check(ctx); err != nil {
					name := check.Name
					if name == "" {
						name = "dependency"
					}
					results[i] = name + ": " + err.Error()
				}
			}(i, check)
		}
		wg.Wait()

		var failures []string
		for _, res := range results {
			if res != "" {
				failures = append(failures, res)
			}
		}
		if len(failures) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(strings.Join(failures, "; ")))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
