package welldyne

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// SFTPConfig holds the WellDyne SFTP site configuration.
type SFTPConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	RemoteDir string
	Timeout   time.Duration
}

// DefaultSFTPConfig returns defaults for the WellDyne SFTP site.
func DefaultSFTPConfig() SFTPConfig {
	return SFTPConfig{
		Port:      22,
		RemoteDir: "/inbound",
		Timeout:   60 * time.Second,
	}
}

// Uploader pushes rendered batch files to the WellDyne SFTP site. A fresh
// connection is opened per upload; the batch uploads at most two files per
// run so connection reuse buys nothing.
type Uploader struct {
	cfg    SFTPConfig
	logger *zap.Logger
}

// NewUploader creates an SFTP uploader.
func NewUploader(cfg SFTPConfig, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{cfg: cfg, logger: logger}
}

// Upload writes contents to name in the remote directory.
func (u *Uploader) Upload(ctx context.Context, name string, contents []byte) error {
	sshCfg := &ssh.ClientConfig{
		User: u.cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(u.cfg.Password),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         u.cfg.Timeout,
	}

	addr := fmt.Sprintf("%s:%d", u.cfg.Host, u.cfg.Port)
	conn, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return fmt.Errorf("sftp dial %s: %w", addr, err)
	}
	defer conn.Close()

	client, err := sftp.NewClient(conn)
	if err != nil {
		return fmt.Errorf("sftp client: %w", err)
	}
	defer client.Close()

	remote := path.Join(u.cfg.RemoteDir, name)
	f, err := client.Create(remote)
	if err != nil {
		return fmt.Errorf("sftp create %s: %w", remote, err)
	}
	defer f.Close()

	if _, err := f.Write(contents); err != nil {
		return fmt.Errorf("sftp write %s: %w", remote, err)
	}

	u.logger.Info("file uploaded",
		zap.String("remote", remote),
		zap.Int("bytes", len(contents)))
	return nil
}
