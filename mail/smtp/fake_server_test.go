package smtp

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/binary"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pure-golang/bulkmail/mail"
)

// generateTestCert generates a self-signed certificate for testing
func generateTestCert(t *testing.T) tls.Certificate {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test SMTP"},
			CommonName:   "localhost",
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	require.NoError(t, err)

	privBytes, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)

	cert, err := tls.X509KeyPair(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privBytes}),
	)
	require.NoError(t, err)
	return cert
}

type fakeMessage struct {
	from  string
	rcpts []string
	data  string
}

// fakeServer is a minimal SMTP server for testing.
type fakeServer struct {
	listener net.Listener

	cert     *tls.Certificate // enables STARTTLS
	implicit bool             // TLS from the first byte
	user     string           // enables AUTH PLAIN
	pass     string

	rejectRcpt string
	rejectData bool

	mu       sync.Mutex
	messages []fakeMessage
}

type fakeOption func(*fakeServer)

func withAuth(user, pass string) fakeOption {
	return func(s *fakeServer) { s.user, s.pass = user, pass }
}

func withStartTLS(cert tls.Certificate) fakeOption {
	return func(s *fakeServer) { s.cert = &cert }
}

func withImplicitTLS(cert tls.Certificate) fakeOption {
	return func(s *fakeServer) { s.cert, s.implicit = &cert, true }
}

func withRejectRcpt(addr string) fakeOption {
	return func(s *fakeServer) { s.rejectRcpt = addr }
}

func withRejectData() fakeOption {
	return func(s *fakeServer) { s.rejectData = true }
}

func startFakeServer(t *testing.T, opts ...fakeOption) *fakeServer {
	t.Helper()

	s := &fakeServer{}
	for _, opt := range opts {
		opt(s)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to start SMTP server")
	if s.implicit {
		listener = tls.NewListener(listener, &tls.Config{Certificates: []tls.Certificate{*s.cert}})
	}
	s.listener = listener
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go s.handle(conn)
		}
	}()

	return s
}

// server returns a mail.Server pointing at the fake.
func (s *fakeServer) server() mail.Server {
	addr := s.listener.Addr().(*net.TCPAddr)
	return mail.Server{Host: "127.0.0.1", Port: addr.Port, Username: s.user, Password: s.pass}
}

func (s *fakeServer) received() []fakeMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]fakeMessage(nil), s.messages...)
}

func (s *fakeServer) handle(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	reply := func(line string) {
		_, _ = w.WriteString(line + "\r\n")
		_ = w.Flush()
	}

	secure := s.implicit
	var msg fakeMessage
	reply("220 localhost ESMTP Test Server")

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		cmd := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			ext := []string{"localhost"}
			if s.cert != nil && !secure {
				ext = append(ext, "STARTTLS")
			}
			if s.user != "" {
				ext = append(ext, "AUTH PLAIN")
			}
			for i, e := range ext {
				sep := "-"
				if i == len(ext)-1 {
					sep = " "
				}
				reply("250" + sep + e)
			}
		case strings.HasPrefix(cmd, "HELO"):
			reply("250 localhost")
		case cmd == "STARTTLS":
			reply("220 Ready to start TLS")
			tc := tls.Server(conn, &tls.Config{Certificates: []tls.Certificate{*s.cert}})
			if err := tc.Handshake(); err != nil {
				return
			}
			r, w = bufio.NewReader(tc), bufio.NewWriter(tc)
			secure = true
		case strings.HasPrefix(cmd, "AUTH PLAIN"):
			parts := strings.Fields(line)
			if len(parts) < 3 {
				reply("501 initial response required")
				continue
			}
			raw, _ := base64.StdEncoding.DecodeString(parts[2])
			fields := strings.Split(string(raw), "\x00")
			if len(fields) == 3 && fields[1] == s.user && fields[2] == s.pass {
				reply("235 2.7.0 Authentication successful")
			} else {
				reply("535 5.7.8 Authentication credentials invalid")
			}
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			msg = fakeMessage{from: angleAddr(line)}
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			addr := angleAddr(line)
			if addr == s.rejectRcpt {
				reply("550 5.1.1 No such user")
				continue
			}
			msg.rcpts = append(msg.rcpts, addr)
			reply("250 OK")
		case cmd == "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
			var data strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				l = strings.TrimRight(l, "\r\n")
				if l == "." {
					break
				}
				l = strings.TrimPrefix(l, ".")
				data.WriteString(l + "\r\n")
			}
			if s.rejectData {
				reply("554 5.7.1 Message rejected")
				continue
			}
			msg.data = data.String()
			s.mu.Lock()
			s.messages = append(s.messages, msg)
			s.mu.Unlock()
			reply("250 OK queued")
		case cmd == "RSET" || cmd == "NOOP":
			reply("250 OK")
		case cmd == "QUIT":
			reply("221 localhost closing connection")
			return
		default:
			reply("500 Syntax error")
		}
	}
}

func angleAddr(line string) string {
	start := strings.IndexByte(line, '<')
	end := strings.LastIndexByte(line, '>')
	if start < 0 || end <= start {
		return ""
	}
	return line[start+1 : end]
}

// startSilentServer accepts connections and never answers.
func startSilentServer(t *testing.T) mail.Server {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	t.Cleanup(func() {
		_ = listener.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()

	return mail.Server{Host: "127.0.0.1", Port: listener.Addr().(*net.TCPAddr).Port}
}

// closedPort returns a local port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

// socksProxy is a minimal no-auth SOCKS5 CONNECT proxy.
type socksProxy struct {
	listener net.Listener

	mu      sync.Mutex
	targets []string
}

func startSocksProxy(t *testing.T) *socksProxy {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	p := &socksProxy{listener: listener}
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go p.handle(conn)
		}
	}()
	return p
}

func (p *socksProxy) addr() string {
	return p.listener.Addr().String()
}

func (p *socksProxy) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.targets...)
}

func (p *socksProxy) handle(conn net.Conn) {
	defer conn.Close()

	// greeting: VER NMETHODS METHODS...
	head := make([]byte, 2)
	if _, err := io.ReadFull(conn, head); err != nil {
		return
	}
	if _, err := io.ReadFull(conn, make([]byte, head[1])); err != nil {
		return
	}
	if _, err := conn.Write([]byte{0x05, 0x00}); err != nil {
		return
	}

	// request: VER CMD RSV ATYP ADDR PORT
	req := make([]byte, 4)
	if _, err := io.ReadFull(conn, req); err != nil {
		return
	}
	var host string
	switch req[3] {
	case 0x01:
		ip := make([]byte, 4)
		if _, err := io.ReadFull(conn, ip); err != nil {
			return
		}
		host = net.IP(ip).String()
	case 0x04:
		ip := make([]byte, 16)
		if _, err := io.ReadFull(conn, ip); err != nil {
			return
		}
		host = net.IP(ip).String()
	case 0x03:
		n := make([]byte, 1)
		if _, err := io.ReadFull(conn, n); err != nil {
			return
		}
		name := make([]byte, n[0])
		if _, err := io.ReadFull(conn, name); err != nil {
			return
		}
		host = string(name)
	default:
		return
	}
	portBuf := make([]byte, 2)
	if _, err := io.ReadFull(conn, portBuf); err != nil {
		return
	}
	target := net.JoinHostPort(host, strconv.Itoa(int(binary.BigEndian.Uint16(portBuf))))

	p.mu.Lock()
	p.targets = append(p.targets, target)
	p.mu.Unlock()

	upstream, err := net.Dial("tcp", target)
	if err != nil {
		_, _ = conn.Write([]byte{0x05, 0x05, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		return
	}
	defer upstream.Close()
	if _, err := conn.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0}); err != nil {
		return
	}

	done := make(chan struct{}, 2)
	go func() { _, _ = io.Copy(upstream, conn); done <- struct{}{} }()
	go func() { _, _ = io.Copy(conn, upstream); done <- struct{}{} }()
	<-done
}
