package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/cgi"
	"os"
	"strconv"
	"strings"
	"time"

	"pkt.systems/pslog"

	"github.com/nickyhof/QueryGate"
	"github.com/nickyhof/QueryGate/query"
)

// cgiSettings reads the settings of a CGI run from the environment, since
// a web server passes no arguments.
func cgiSettings() settings {
	s := settings{
		ConfigPath: os.Getenv("QUERYGATE_CONFIG"),
		BaseDir:    os.Getenv("QUERYGATE_BASE_DIR"),
		LogLevel:   os.Getenv("QUERYGATE_LOG_LEVEL"),
	}
	if d, err := time.ParseDuration(os.Getenv("QUERYGATE_TIMEOUT")); err == nil {
		s.Timeout = d
	}
	return s
}

func serveCGI(ctx context.Context, s settings, baseLogger pslog.Logger) error {
	inst, err := openInstance(s, baseLogger)
	if err != nil {
		return err
	}
	h := newCGIHandler(ctx, inst, s.Timeout)
	if err := cgi.Serve(h); err != nil {
		return err
	}
	return responseError(h.last)
}

// cgiHandler answers the single request of a CGI invocation.
type cgiHandler struct {
	ctx     context.Context
	inst    *QueryGate.Instance
	slot    *query.Slot
	timeout time.Duration
	last    query.Response
}

func newCGIHandler(ctx context.Context, inst *QueryGate.Instance, timeout time.Duration) *cgiHandler {
	slot := query.NewSlot(0)
	slot.CGI = true
	return &cgiHandler{ctx: ctx, inst: inst, slot: slot, timeout: timeoutOrDefault(timeout)}
}

func (h *cgiHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := query.Request{
		Method:      r.Method,
		Query:       r.URL.RawQuery,
		ContentType: r.Header.Get("Content-Type"),
	}
	req.IP, req.Port = splitHostPort(r.RemoteAddr)
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		req.Token = strings.TrimSpace(token)
	}

	var resp query.Response
	if msg := readBody(r, &req); msg != "" {
		resp = h.inst.Processor.Fail(h.slot, req, msg)
	} else {
		ctx, cancel := context.WithTimeout(h.ctx, h.timeout)
		resp = h.inst.Process(ctx, h.slot, req)
		cancel()
	}
	h.last = resp

	header := w.Header()
	header.Set("Content-Type", resp.ContentType)
	header.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Cache-Control", "no-cache, must-revalidate")
	header.Set("Pragma", "no-cache")
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}

// readBody reads a POST body into req. A non-empty message is the error to
// answer with.
func readBody(r *http.Request, req *query.Request) string {
	if r.Method != http.MethodPost || r.Body == nil {
		return ""
	}
	switch {
	case r.ContentLength < 0:
		return query.MsgCGIQuery
	case r.ContentLength > query.MaxBodyLen:
		return query.MsgLongQuery
	}
	req.Body = make([]byte, r.ContentLength)
	if _, err := io.ReadFull(r.Body, req.Body); err != nil {
		return query.MsgCGIQuery
	}
	return ""
}

func splitHostPort(addr string) (ip, port string) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, ""
	}
	return host, port
}
