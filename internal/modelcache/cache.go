package modelcache

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kikiluvv/moodset/pkg/util"
	"github.com/rs/zerolog"
)

// ErrDigestMismatch is returned when downloaded or cached weights do not
// hash to the expected digest.
var ErrDigestMismatch = errors.New("digest mismatch")

// Spec identifies one remote weights file.
type Spec struct {
	URL      string
	FileName string
	// Digest is a hex MD5 (32 chars) or SHA-256 (64 chars). Empty pins the
	// SHA-256 of the first download.
	Digest string
}

// Cache keeps downloaded model files under a single directory.
type Cache struct {
	logger zerolog.Logger
	dir    string
	client *http.Client
}

// New creates a cache rooted at dir. A nil client uses http.DefaultClient.
func New(logger zerolog.Logger, dir string, client *http.Client) *Cache {
	if client == nil {
		client = http.DefaultClient
	}
	return &Cache{
		logger: logger.With().Str("component", "modelcache").Logger(),
		dir:    dir,
		client: client,
	}
}

// Fetch returns the local path of spec's file, downloading it when it is not
// cached or when the cached copy fails verification. Without a configured
// digest the SHA-256 of the first download is pinned next to the file and
// every later reuse is checked against it.
func (c *Cache) Fetch(ctx context.Context, spec Spec) (string, error) {
	if spec.FileName == "" {
		spec.FileName = filepath.Base(spec.URL)
	}
	dest := filepath.Join(c.dir, spec.FileName)

	if _, err := hasherFor(spec.Digest); err != nil {
		return "", err
	}
	digest := spec.Digest
	if digest == "" {
		digest = c.readPin(dest)
	}

	if _, err := os.Stat(dest); err == nil && digest != "" {
		newHash, _ := hasherFor(digest)
		ok, err := verifyFile(dest, digest, newHash)
		if err != nil {
			return "", err
		}
		if ok {
			c.logger.Debug().Str("path", dest).Msg("using cached weights")
			return dest, nil
		}
		c.logger.Warn().Str("path", dest).Msg("cached weights failed verification, downloading again")
	}

	if err := util.EnsureDir(c.dir); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}
	if err := c.download(ctx, spec, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// PinPath is the sidecar holding the pinned SHA-256 of a cached file.
func PinPath(dest string) string {
	return dest + ".sha256"
}

func (c *Cache) readPin(dest string) string {
	b, err := os.ReadFile(PinPath(dest))
	if err != nil {
		return ""
	}
	pin := strings.TrimSpace(string(b))
	if len(pin) != 2*sha256.Size {
		c.logger.Warn().Str("path", PinPath(dest)).Msg("ignoring malformed pinned digest")
		return ""
	}
	return pin
}

func (c *Cache) download(ctx context.Context, spec Spec, dest string) error {
	start := time.Now()
	c.logger.Info().Str("url", spec.URL).Msg("downloading weights")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", spec.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: %s", spec.URL, resp.Status)
	}

	tmp, err := os.CreateTemp(c.dir, spec.FileName+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	newHash, _ := hasherFor(spec.Digest)
	pin := newHash == nil
	if pin {
		newHash = sha256.New
	}
	h := newHash()

	n, err := io.Copy(io.MultiWriter(tmp, h), resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", spec.FileName, err)
	}

	got := hex.EncodeToString(h.Sum(nil))
	if !pin && !strings.EqualFold(got, spec.Digest) {
		return fmt.Errorf("%s: %w: got %s, want %s", spec.FileName, ErrDigestMismatch, got, spec.Digest)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("failed to move weights into cache: %w", err)
	}
	if pin {
		if err := os.WriteFile(PinPath(dest), []byte(got+"\n"), 0644); err != nil {
			return fmt.Errorf("failed to pin digest: %w", err)
		}
		c.logger.Info().Str("file", spec.FileName).Str("sha256", got).Msg("no digest configured, pinned downloaded weights")
	}

	c.logger.Info().
		Str("path", dest).
		Str("size", humanize.Bytes(uint64(n))).
		Dur("elapsed", time.Since(start)).
		Msg("weights downloaded")
	return nil
}

// hasherFor picks the hash by digest length. An empty digest yields a nil
// constructor.
func hasherFor(digest string) (func() hash.Hash, error) {
	switch len(digest) {
	case 0:
		return nil, nil
	case 2 * md5.Size:
		return md5.New, nil
	case 2 * sha256.Size:
		return sha256.New, nil
	}
	return nil, fmt.Errorf("unsupported digest %q: want 32 hex chars (md5) or 64 (sha256)", digest)
}

func verifyFile(path, digest string, newHash func() hash.Hash) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	h := newHash()
	if _, err := io.Copy(h, f); err != nil {
		return false, fmt.Errorf("error hashing %s: %w", path, err)
	}
	return strings.EqualFold(hex.EncodeToString(h.Sum(nil)), digest), nil
}
