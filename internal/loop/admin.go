package loop

import (
	"fmt"
	"net/http"
	"strconv"

	"tailscale.com/tsweb"

	"github.com/banshee-data/lpi-control/internal/httputil"
)

// AttachAdminRoutes mounts the loop's metrics, a stats snapshot and a
// setpoint control on the tsweb debug page. Routes are suffixed with the
// loop name so several loops can share one mux.
func (l *Loop) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	name := l.opts.Name

	debug.Handle("loop-metrics-"+name, fmt.Sprintf("Prometheus metrics for loop %q", name), l.metrics.Handler())

	debug.Handle("loop-stats-"+name, fmt.Sprintf("Counters and last tick of loop %q", name), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, l.Stats())
	}))

	debug.HandleSilentFunc("loop-setpoint-"+name, func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireMethod(w, r, http.MethodPost) {
			return
		}
		v, err := strconv.ParseFloat(r.FormValue("setpoint"), 64)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "setpoint must be a number, got %q", r.FormValue("setpoint"))
			return
		}
		if err := l.SetSetpoint(v); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "%v", err)
			return
		}
		httputil.WriteJSONOK(w, map[string]float64{"setpoint": v})
	})
}
