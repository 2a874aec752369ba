package httpx

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/greenroomhq/greenroom/pkg/logger"
)

type Server struct {
	http.Server

	opts Options

	listener *Listener
	redirect *Server
	log      *logger.Logger
}

func NewServer(address string, handler func(*Server) http.Handler, options ...Option) (*Server, error) {
	opts := &Options{
		Https:         false,
		HttpsRedirect: true,
		IdleTimeout:   120 * time.Second,
		ReadTimeout:   500 * time.Second,
		WriteTimeout:  500 * time.Second,
	}
	opts.override(options...)
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}

	server := &Server{
		Server: http.Server{
			Addr:         address,
			IdleTimeout:  opts.IdleTimeout,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		},
		opts: *opts,
		log:  opts.Logger,
	}
	server.Handler = handler(server)

	if opts.Https && opts.IsAutoHttpsCert() {
		manager := NewTLSConfig(opts.HttpsDomain).CertManager
		server.TLSConfig = manager.TLSConfig()
	}

	addr := server.Addr
	if addr == "" {
		addr = ":http"
		if opts.Https {
			addr = ":https"
		}
		opts.Logger.Warn().Msgf("Empty server address has been changed to %v", addr)
	}
	listener, err := NewListener(addr, opts.PortRoll)
	if err != nil {
		return nil, err
	}
	server.listener = listener
	server.Addr = mergeAddresses(server.Addr, *listener)

	return server, nil
}

func (s *Server) Run() { go s.run() }

func (s *Server) run() {
	s.log.Info().Msgf("Starting %s server on %s", s.GetProtocol(), s.Addr)

	if s.opts.Https && s.opts.HttpsRedirect {
		rdr, err := s.redirection()
		if err != nil {
			s.log.Error().Err(err).Msg("couldn't init redirection server")
		} else {
			s.redirect = rdr
			s.redirect.Run()
		}
	}

	var err error
	if s.opts.Https {
		err = s.ServeTLS(*s.listener, s.opts.HttpsCert, s.opts.HttpsKey)
	} else {
		err = s.Serve(*s.listener)
	}
	if err != nil && err != http.ErrServerClosed {
		s.log.Error().Err(err).Msg("http serve fail")
	}
}

// redirection builds a plain HTTP server which redirects everything
// to the main HTTPS address.
func (s *Server) redirection() (*Server, error) {
	address := s.opts.HttpsRedirectAddress
	host, _, err := net.SplitHostPort(address)
	if err == nil && host == "" {
		address = net.JoinHostPort("localhost", portOf(address))
	}
	target := "https://" + s.Addr
	return NewServer(address, func(*Server) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, target+r.URL.Path, http.StatusMovedPermanently)
		})
	},
		HttpsRedirect(false),
		WithLogger(s.log),
	)
}

func portOf(address string) string {
	if _, port, err := net.SplitHostPort(address); err == nil {
		return port
	}
	return "80"
}

func (s *Server) GetProtocol() string {
	if s.opts.Https {
		return "https"
	}
	return "http"
}

func (s *Server) GetPort() int { return s.listener.GetPort() }

func (s *Server) Shutdown(ctx context.Context) error {
	if s.redirect != nil {
		_ = s.redirect.Shutdown(ctx)
	}
	return s.Server.Shutdown(ctx)
}

// mergeAddresses joins the host of the requested address with the
// port of the actually bound listener (relevant with port rolling).
func mergeAddresses(address string, l Listener) string {
	addr, _, err := net.SplitHostPort(address)
	if err != nil {
		addr = address
	}
	if addr == "" {
		addr = "localhost"
	}
	if port := l.GetPort(); port > 0 {
		addr += ":" + strconv.Itoa(port)
	}
	return addr
}
