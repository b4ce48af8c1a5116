package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	defaultSFTPPort    = 22
	defaultSFTPTimeout = 30 * time.Second
)

// SFTPConfig holds the connection settings for an SFTP provider.
type SFTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	// KeyFile is a private key used instead of the password when set.
	KeyFile string
	// BasePath anchors relative paths on the remote host.
	BasePath string
	// KnownHostsFile enables host key verification. Without it any host
	// key is accepted.
	KnownHostsFile string
	Timeout        time.Duration
}

// connectFunc opens an SFTP session. The returned closer tears down the
// transport underneath the client.
type connectFunc func(ctx context.Context) (*sftp.Client, io.Closer, error)

// SFTP stores files on a remote host over SFTP. The connection is opened
// on first use and reopened after it is lost.
type SFTP struct {
	basePath string
	connect  connectFunc
	logger   *zap.Logger

	mu     sync.Mutex
	client *sftp.Client
	closer io.Closer
}

var _ Provider = (*SFTP)(nil)

// NewSFTP validates cfg and returns a provider. No connection is made
// until the first operation.
func NewSFTP(cfg SFTPConfig, logger *zap.Logger) (*SFTP, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		return nil, errors.New("sftp: host is required")
	}
	if cfg.User == "" {
		return nil, errors.New("sftp: user is required")
	}

	clientCfg, err := sshClientConfig(cfg, logger)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = defaultSFTPPort
	}
	hostPort := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	return newSFTP(cfg.BasePath, dialSSH(hostPort, clientCfg), logger), nil
}

func newSFTP(basePath string, connect connectFunc, logger *zap.Logger) *SFTP {
	if basePath == "" {
		basePath = "."
	}
	return &SFTP{
		basePath: path.Clean(basePath),
		connect:  connect,
		logger:   logger,
	}
}

func sshClientConfig(cfg SFTPConfig, logger *zap.Logger) (*ssh.ClientConfig, error) {
	var auth ssh.AuthMethod
	switch {
	case cfg.KeyFile != "":
		key, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("sftp: reading key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("sftp: parsing key file %s: %w", cfg.KeyFile, err)
		}
		auth = ssh.PublicKeys(signer)
	case cfg.Password != "":
		auth = ssh.Password(cfg.Password)
	default:
		return nil, errors.New("sftp: no authentication method, set a key file or password")
	}

	var hostKey ssh.HostKeyCallback
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("sftp: loading known hosts: %w", err)
		}
		hostKey = cb
	} else {
		logger.Warn("sftp host key verification disabled, set a known hosts file to enable it",
			zap.String("host", cfg.Host))
		hostKey = ssh.InsecureIgnoreHostKey() // nolint: gosec
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultSFTPTimeout
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}, nil
}

// dialSSH returns a connectFunc that honours ctx while dialing.
func dialSSH(hostPort string, cfg *ssh.ClientConfig) connectFunc {
	return func(ctx context.Context) (*sftp.Client, io.Closer, error) {
		d := net.Dialer{Timeout: cfg.Timeout}
		conn, err := d.DialContext(ctx, "tcp", hostPort)
		if err != nil {
			return nil, nil, fmt.Errorf("sftp: dialing %s: %w", hostPort, err)
		}

		ncc, chans, reqs, err := ssh.NewClientConn(conn, hostPort, cfg)
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("sftp: ssh handshake with %s: %w", hostPort, err)
		}
		sshClient := ssh.NewClient(ncc, chans, reqs)

		client, err := sftp.NewClient(sshClient)
		if err != nil {
			sshClient.Close()
			return nil, nil, fmt.Errorf("sftp: starting subsystem: %w", err)
		}
		return client, sshClient, nil
	}
}

// session returns the live client, connecting if needed.
func (s *SFTP) session(ctx context.Context) (*sftp.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	client, closer, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	s.client, s.closer = client, closer
	s.logger.Debug("connected to sftp server")
	return client, nil
}

// check drops a lost connection so the next call reconnects.
func (s *SFTP) check(err error) error {
	if err == nil || !errors.Is(err, sftp.ErrSSHFxConnectionLost) {
		return err
	}
	s.logger.Warn("sftp connection lost", zap.Error(err))
	s.mu.Lock()
	s.dropLocked()
	s.mu.Unlock()
	return err
}

// dropLocked closes the transport before the client. The client's
// receive loop only returns once the transport is gone.
func (s *SFTP) dropLocked() error {
	if s.client == nil {
		return nil
	}
	var err error
	if s.closer != nil {
		err = s.closer.Close()
	}
	if cerr := s.client.Close(); err == nil && !isClosedErr(cerr) {
		err = cerr
	}
	s.client, s.closer = nil, nil
	return err
}

// isClosedErr reports errors from closing a client whose transport is
// already shut down.
func isClosedErr(err error) bool {
	return err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, sftp.ErrSSHFxConnectionLost) || errors.Is(err, net.ErrClosed)
}

// remote maps a provider path onto the remote filesystem. Relative paths
// are anchored at the base path.
func (s *SFTP) remote(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(s.basePath, p)
}

func (s *SFTP) Name() string { return "sftp" }

func (s *SFTP) Join(elem ...string) string { return path.Join(elem...) }

func (s *SFTP) Exists(ctx context.Context, p string) (bool, error) {
	c, err := s.session(ctx)
	if err != nil {
		return false, err
	}
	_, err = c.Stat(s.remote(p))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking %s: %w", p, s.check(err))
}

func (s *SFTP) CreateDirectory(ctx context.Context, p string) error {
	c, err := s.session(ctx)
	if err != nil {
		return err
	}
	if err := c.MkdirAll(s.remote(p)); err != nil {
		return fmt.Errorf("creating directory %s: %w", p, s.check(err))
	}
	s.logger.Debug("created directory", zap.String("path", s.remote(p)))
	return nil
}

func (s *SFTP) ReadFile(ctx context.Context, p string) (string, error) {
	c, err := s.session(ctx)
	if err != nil {
		return "", err
	}
	f, err := c.Open(s.remote(p))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", p, s.check(err))
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", p, s.check(err))
	}
	return string(data), nil
}

// WriteFile writes content, creating parent directories as needed.
func (s *SFTP) WriteFile(ctx context.Context, p, content string) error {
	c, err := s.session(ctx)
	if err != nil {
		return err
	}
	target := s.remote(p)
	if err := c.MkdirAll(path.Dir(target)); err != nil {
		return fmt.Errorf("creating parent of %s: %w", p, s.check(err))
	}

	f, err := c.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("writing %s: %w", p, s.check(err))
	}
	if _, err := f.Write([]byte(content)); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", p, s.check(err))
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", p, s.check(err))
	}
	s.logger.Debug("wrote file", zap.String("path", target))
	return nil
}

func (s *SFTP) ListFiles(ctx context.Context, p string) ([]string, error) {
	c, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	infos, err := c.ReadDir(s.remote(p))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", p, s.check(err))
	}
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		names = append(names, fi.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *SFTP) FileStats(ctx context.Context, p string) (FileInfo, error) {
	c, err := s.session(ctx)
	if err != nil {
		return FileInfo{}, err
	}
	fi, err := c.Stat(s.remote(p))
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat %s: %w", p, s.check(err))
	}
	return FileInfo{ModTime: fi.ModTime(), Size: fi.Size(), IsDir: fi.IsDir()}, nil
}

func (s *SFTP) Status(ctx context.Context, p string) (*Report, error) {
	rep, err := buildReport(ctx, s, p)
	if err != nil {
		return nil, fmt.Errorf("memory bank status: %w", err)
	}
	rep.Path = s.remote(p)
	return rep, nil
}

func (s *SFTP) CreateBackup(ctx context.Context, src, dst string) error {
	from, to := s.remote(src), s.remote(dst)
	if within(from, to, "/") || (from == "." && !path.IsAbs(to) && to != ".." && !strings.HasPrefix(to, "../")) {
		return fmt.Errorf("backing up %s to %s: %w", src, dst, ErrBackupInsideSource)
	}

	c, err := s.session(ctx)
	if err != nil {
		return err
	}
	if err := s.copyTree(ctx, c, from, to); err != nil {
		return fmt.Errorf("backing up %s: %w", src, s.check(err))
	}
	s.logger.Info("created backup", zap.String("source", from), zap.String("backup", to))
	return nil
}

func (s *SFTP) copyTree(ctx context.Context, c *sftp.Client, src, dst string) error {
	if err := c.MkdirAll(dst); err != nil {
		return err
	}
	infos, err := c.ReadDir(src)
	if err != nil {
		return err
	}
	for _, fi := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}
		from, to := path.Join(src, fi.Name()), path.Join(dst, fi.Name())
		if fi.IsDir() {
			if err := s.copyTree(ctx, c, from, to); err != nil {
				return err
			}
			continue
		}
		if err := copyRemoteFile(c, from, to); err != nil {
			return err
		}
	}
	return nil
}

func copyRemoteFile(c *sftp.Client, from, to string) error {
	in, err := c.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := c.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Close ends the SFTP session. The provider reconnects if used again.
func (s *SFTP) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropLocked()
}
