package video

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"
	"github.com/reelhouse/reelhouse/internal/httputil"
	"github.com/reelhouse/reelhouse/internal/viewcount"
)

func parseBrowser(ua string) string {
	if ua == "" {
		return "Other"
	}
	name, _ := useragent.New(ua).Browser()
	switch {
	case strings.Contains(ua, "Edg/"):
		return "Edge"
	case name == "Chrome":
		return "Chrome"
	case name == "Firefox":
		return "Firefox"
	case name == "Safari":
		return "Safari"
	default:
		return "Other"
	}
}

func parseDevice(ua string) string {
	if ua == "" {
		return "Desktop"
	}
	if strings.Contains(ua, "iPad") || (strings.Contains(ua, "Android") && !strings.Contains(ua, "Mobile")) {
		return "Tablet"
	}
	if useragent.New(ua).Mobile() {
		return "Mobile"
	}
	return "Desktop"
}

func (h *Handler) viewerFromRequest(r *http.Request) viewcount.Viewer {
	ua := r.UserAgent()
	return viewcount.Viewer{
		Country: h.geo.Country(httputil.ClientIP(r)),
		Browser: parseBrowser(ua),
		Device:  parseDevice(ua),
	}
}
