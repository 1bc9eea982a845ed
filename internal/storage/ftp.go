package storage

import (
	"bytes"
	"context"
	"io"
	"net/textproto"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP-backed object store.
type FTPOptions struct {
	Addr     string
	User     string
	Password string
	Root     string // remote directory objects live under
	Timeout  time.Duration
}

// FTPStore stores objects on an FTP server. Each operation dials its own
// connection so a stale control channel never poisons later calls.
type FTPStore struct {
	opts FTPOptions
}

// NewFTPStore creates an FTPStore with the given options.
func NewFTPStore(opts FTPOptions) *FTPStore {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
		opts.Password = "anonymous@"
	}
	return &FTPStore{opts: opts}
}

func (s *FTPStore) connect(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(s.opts.Addr, ftp.DialWithTimeout(s.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "ftp dial")
	}
	if err := conn.Login(s.opts.User, s.opts.Password); err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "ftp login")
	}
	return conn, nil
}

func (s *FTPStore) remotePath(p string) string {
	p = NormalizePath(p)
	if s.opts.Root == "" {
		return p
	}
	return path.Join(s.opts.Root, p)
}

// ensureDirs creates every directory component of the remote path.
// MakeDir on an existing directory fails; those errors are ignored.
func (s *FTPStore) ensureDirs(conn *ftp.ServerConn, remote string) {
	dir := path.Dir(remote)
	if dir == "." || dir == "/" {
		return
	}
	parts := strings.Split(dir, "/")
	cur := ""
	for _, part := range parts {
		if part == "" {
			continue
		}
		cur = path.Join(cur, part)
		_ = conn.MakeDir(cur)
	}
}

// notFound reports whether an FTP error is a 550 file-unavailable reply.
func notFound(err error) bool {
	var proto *textproto.Error
	if eris.As(err, &proto) {
		return proto.Code == ftp.StatusFileUnavailable
	}
	return false
}

func (s *FTPStore) Upload(ctx context.Context, p string, r io.Reader) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()

	remote := s.remotePath(p)
	s.ensureDirs(conn, remote)

	zap.L().Debug("ftp: storing object", zap.String("path", remote))
	if err := conn.Stor(remote, r); err != nil {
		return eris.Wrapf(err, "ftp store %s", p)
	}
	return nil
}

func (s *FTPStore) Download(ctx context.Context, p string) ([]byte, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	resp, err := conn.Retr(s.remotePath(p))
	if err != nil {
		if notFound(err) {
			return nil, eris.Wrapf(ErrNotFound, "download %s", p)
		}
		return nil, eris.Wrapf(err, "ftp retrieve %s", p)
	}
	defer resp.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp); err != nil {
		return nil, eris.Wrapf(err, "ftp read %s", p)
	}
	return buf.Bytes(), nil
}

func (s *FTPStore) Move(ctx context.Context, from, to string) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()

	dst := s.remotePath(to)
	s.ensureDirs(conn, dst)

	if err := conn.Rename(s.remotePath(from), dst); err != nil {
		if notFound(err) {
			return eris.Wrapf(ErrNotFound, "move %s", from)
		}
		return eris.Wrapf(err, "ftp rename %s to %s", from, to)
	}
	return nil
}

func (s *FTPStore) Remove(ctx context.Context, p string) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()

	if err := conn.Delete(s.remotePath(p)); err != nil {
		if notFound(err) {
			return eris.Wrapf(ErrNotFound, "remove %s", p)
		}
		return eris.Wrapf(err, "ftp delete %s", p)
	}
	return nil
}

func (s *FTPStore) Exists(ctx context.Context, p string) (bool, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Quit()

	_, err = conn.FileSize(s.remotePath(p))
	if err != nil {
		if notFound(err) {
			return false, nil
		}
		return false, eris.Wrapf(err, "ftp size %s", p)
	}
	return true, nil
}
