package artifacts

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Uploader publishes preview artifacts to a media host over SFTP. Trainer
// workers use it to make a completed voice's preview sample fetchable at
// its sample reference path.
type Uploader struct {
	host     string
	port     int
	username string
	password string
	keyPath  string
	baseDir  string
}

// Config captures connection settings for the media host.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	KeyPath  string
	BaseDir  string
}

func NewUploader(cfg Config) *Uploader {
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	return &Uploader{
		host:     cfg.Host,
		port:     port,
		username: cfg.Username,
		password: cfg.Password,
		keyPath:  cfg.KeyPath,
		baseDir:  strings.TrimSuffix(cfg.BaseDir, "/"),
	}
}

// Upload writes data to baseDir/relativePath on the media host, creating
// parent directories as needed.
func (u *Uploader) Upload(relativePath string, data []byte) error {
	authMethods, err := u.buildAuthMethods()
	if err != nil {
		return err
	}

	config := &ssh.ClientConfig{
		User:            u.username,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", u.host, u.port)
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return fmt.Errorf("ssh dial failed: %w", err)
	}
	defer client.Close()

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("open sftp session: %w", err)
	}
	defer sftpClient.Close()

	remotePath := u.baseDir + "/" + strings.TrimPrefix(relativePath, "/")
	if err := sftpClient.MkdirAll(dirName(remotePath)); err != nil {
		return fmt.Errorf("create remote directory: %w", err)
	}

	file, err := sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("write remote file: %w", err)
	}
	if err := file.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod remote file: %w", err)
	}
	return nil
}

func (u *Uploader) buildAuthMethods() ([]ssh.AuthMethod, error) {
	authMethods := make([]ssh.AuthMethod, 0, 2)
	if key := strings.TrimSpace(u.keyPath); key != "" {
		data, err := os.ReadFile(key)
		if err != nil {
			return nil, fmt.Errorf("read ssh private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("parse ssh private key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	if u.password != "" {
		authMethods = append(authMethods, ssh.Password(u.password))
	}
	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no authentication method configured for media host")
	}
	return authMethods, nil
}

func dirName(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx == -1 {
		return "."
	}
	return path[:idx]
}
