package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"

	"github.com/jacoelho/xmlhub/internal/bindings"
	"github.com/jacoelho/xmlhub/internal/config"
)

type ServerSuite struct {
	suite.Suite
	router http.Handler
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	cfg := config.Default()
	cfg.Server.MaxBodyBytes = 256
	cfg.Bindings = []config.Binding{
		{Element: "order", Handler: config.KindJSON},
		{Element: "line", Handler: config.KindCount},
		{Element: "note", Handler: config.KindText},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h, err := New(cfg, bindings.NewLoader(""), logger, prometheus.NewRegistry())
	s.Require().NoError(err)
	s.router = h.Router()
}

func (s *ServerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *ServerSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/healthz", "")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"status":"ok"}`, rec.Body.String())
}

func (s *ServerSuite) TestProcess() {
	rec := s.do(http.MethodPost, "/v1/process", `<orders><order id="1"><line>a</line><note>n</note></order></orders>`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal("application/json", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	s.NotEmpty(gjson.Get(body, "id").String())
	s.Equal(int64(4), gjson.Get(body, "elements").Int())
	s.Equal(int64(3), gjson.Get(body, "handlers").Int())
	s.Equal(int64(1), gjson.Get(body, "counts.line").Int())

	output := gjson.Get(body, "output").Array()
	s.Require().Len(output, 2)
	s.Equal("note\tn", output[0].String())
	s.Equal("order", output[1].Get("element").String())
	s.Equal("1", output[1].Get("attrs.id").String())
}

func (s *ServerSuite) TestProcessMalformed() {
	rec := s.do(http.MethodPost, "/v1/process", `<orders></order>`)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	s.Equal("xml-unbalanced-end", gjson.Get(rec.Body.String(), "code").String())
	s.Contains(gjson.Get(rec.Body.String(), "message").String(), "orders")
}

func (s *ServerSuite) TestProcessUndeclaredEncoding() {
	rec := s.do(http.MethodPost, "/v1/process", `<?xml version="1.0" encoding="ISO-8859-1"?><orders/>`)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	s.Equal("xml-unsupported-encoding", gjson.Get(rec.Body.String(), "code").String())
	s.Contains(gjson.Get(rec.Body.String(), "message").String(), "ISO-8859-1")
}

func (s *ServerSuite) TestProcessBodyTooLarge() {
	rec := s.do(http.MethodPost, "/v1/process", "<a>"+strings.Repeat("x", 512)+"</a>")
	s.Equal(http.StatusRequestEntityTooLarge, rec.Code)
	s.Equal("body-too-large", gjson.Get(rec.Body.String(), "code").String())
}

func (s *ServerSuite) TestMetrics() {
	s.do(http.MethodPost, "/v1/process", `<orders/>`)
	s.do(http.MethodPost, "/v1/process", ``)

	rec := s.do(http.MethodGet, "/metrics", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `xmlhub_documents_total{outcome="ok"} 1`)
	s.Contains(rec.Body.String(), `xmlhub_failures_total{code="xml-no-root"} 1`)
}

func (s *ServerSuite) TestMethodNotAllowed() {
	rec := s.do(http.MethodGet, "/v1/process", "")
	s.Equal(http.StatusMethodNotAllowed, rec.Code)
}

func TestNewRejectsMissingScript(t *testing.T) {
	cfg := config.Default()
	cfg.Bindings = []config.Binding{{Element: "a", Handler: config.KindLua, Script: "missing.lua"}}
	_, err := New(cfg, nil, nil, nil)
	if err == nil {
		t.Fatal("expected error for missing script")
	}
}

func TestNewHTTPServer(t *testing.T) {
	cfg := config.Default().Server
	srv := NewHTTPServer(cfg, http.NotFoundHandler())
	if srv.Addr != ":8080" || srv.ReadTimeout != cfg.ReadTimeout.Duration {
		t.Fatalf("unexpected server %+v", srv)
	}
}
