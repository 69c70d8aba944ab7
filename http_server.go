package daqdio

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
)

const httpTimeoutsMs = 3000
const httpTokenHeader = "daqdio-token"

type StateReporter interface {
	State() State
	Status() string
}

// HttpServer exposes the channel table over http:
//
//	GET /state
//	GET /channels
//	GET /channels/:name
//	PUT /channels/:name/:value
//	GET /counter
type HttpServer struct {
	Addr  string
	Token string

	controller *DioController
	reporter   StateReporter
	server     *http.Server
	listener   net.Listener
	logger     *log.Logger
}

type channelJson struct {
	Name   string `json:"name"`
	Port   string `json:"port"`
	Bit    int    `json:"bit"`
	Access string `json:"access"`
}

type valueJson struct {
	Name  string `json:"name"`
	Value bool   `json:"value"`
}

func NewHttpServer(addr, token string, controller *DioController, reporter StateReporter) *HttpServer {
	return &HttpServer{
		Addr:       addr,
		Token:      token,
		controller: controller,
		reporter:   reporter,
		logger:     newLogger("HttpServer"),
	}
}

func (hs *HttpServer) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/state", hs.authorized(hs.handleState))
	router.GET("/channels", hs.authorized(hs.handleChannels))
	router.GET("/channels/:name", hs.authorized(hs.handleRead))
	router.PUT("/channels/:name/:value", hs.authorized(hs.handleWrite))
	router.GET("/counter", hs.authorized(hs.handleCounter))
	return router
}

// Start binds the address and serves in the background. A bind failure is
// returned, errors after that are logged.
func (hs *HttpServer) Start() error {
	httpTimeout := httpTimeoutsMs * time.Millisecond

	listener, err := net.Listen("tcp", hs.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", hs.Addr)
	}
	hs.listener = listener

	hs.server = &http.Server{
		Handler:           hs.Handler(),
		ReadTimeout:       httpTimeout,
		ReadHeaderTimeout: httpTimeout,
		WriteTimeout:      httpTimeout,
		IdleTimeout:       2 * httpTimeout,
	}

	go func() {
		err := hs.server.Serve(listener)
		if err != nil && err != http.ErrServerClosed {
			hs.logger.Error("http server stopped", "err", err)
		}
	}()

	hs.logger.Info("listening", "addr", listener.Addr())
	return nil
}

// BoundAddr is the address actually listened on, empty before Start.
func (hs *HttpServer) BoundAddr() string {
	if hs.listener == nil {
		return ""
	}
	return hs.listener.Addr().String()
}

// Close stops accepting requests and waits for the running ones.
func (hs *HttpServer) Close() error {
	if hs.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), httpTimeoutsMs*time.Millisecond)
	defer cancel()
	return hs.server.Shutdown(ctx)
}

func (hs *HttpServer) authorized(handle httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if len(hs.Token) > 0 && r.Header.Get(httpTokenHeader) != hs.Token {
			http.Error(w, "token mismatch", http.StatusUnauthorized)
			return
		}
		handle(w, r, p)
	}
}

func writeJson(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error kinds of the controller onto status codes.
func writeError(w http.ResponseWriter, err error) {
	var unknown *UnknownChannelError
	var direction *DirectionError
	var portErr *PortError

	switch {
	case errors.As(err, &unknown):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &direction):
		http.Error(w, err.Error(), http.StatusMethodNotAllowed)
	case errors.Is(err, ErrNotImplemented):
		http.Error(w, err.Error(), http.StatusNotImplemented)
	case errors.Is(err, ErrNotConfigured):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.As(err, &portErr):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (hs *HttpServer) handleState(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	writeJson(w, struct {
		State  State  `json:"state"`
		Status string `json:"status"`
	}{hs.reporter.State(), hs.reporter.Status()})
}

func (hs *HttpServer) handleChannels(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	channels := []channelJson{}
	for _, ch := range hs.controller.Channels() {
		channels = append(channels, channelJson{Name: ch.Name, Port: string(ch.Port), Bit: ch.Bit, Access: ch.Access.String()})
	}
	writeJson(w, channels)
}

func (hs *HttpServer) handleRead(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	name := p.ByName("name")
	value, err := hs.controller.ReadChannel(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, valueJson{Name: name, Value: value})
}

func (hs *HttpServer) handleWrite(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	name := p.ByName("name")
	value, err := parseLevel(p.ByName("value"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = hs.controller.WriteChannel(name, value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, valueJson{Name: name, Value: value})
}

func (hs *HttpServer) handleCounter(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	value, err := hs.controller.ReadCounter()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, valueJson{Name: string(PortCounter), Value: value})
}
