package objectstore

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("source not found")

// Source is an opened STDF stream. Reads return decompressed bytes; the
// checksum covers the stored bytes.
type Source struct {
	Location string
	Name     string

	body io.ReadCloser
	raw  hash.Hash
	gz   *gzip.Reader
	r    io.Reader
	n    int64
}

func (s *Source) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.n += int64(n)
	return n, err
}

// BytesRead is the number of decompressed bytes handed out so far.
func (s *Source) BytesRead() int64 { return s.n }

// Compressed reports whether the stored object is gzip.
func (s *Source) Compressed() bool { return s.gz != nil }

// SHA256 returns the hex digest of the stored bytes after reading the rest of
// the stream.
func (s *Source) SHA256() (string, error) {
	if _, err := io.Copy(io.Discard, s); err != nil {
		return "", errors.Wrap(err, "drain source")
	}
	return hex.EncodeToString(s.raw.Sum(nil)), nil
}

func (s *Source) Close() error {
	if s.gz != nil {
		_ = s.gz.Close()
	}
	return s.body.Close()
}

// Opener resolves source locations: a local path or s3://bucket/key.
type Opener struct {
	s3 ObjectGetter
}

// NewOpener returns an Opener. client may be nil when s3:// sources are not
// used.
func NewOpener(client ObjectGetter) *Opener {
	return &Opener{s3: client}
}

func (o *Opener) Open(ctx context.Context, location string) (*Source, error) {
	var (
		body io.ReadCloser
		name string
	)
	if strings.HasPrefix(location, "s3://") {
		b, err := o.openS3(ctx, location)
		if err != nil {
			return nil, err
		}
		body, name = b, path.Base(location)
	} else {
		f, err := openLocal(location)
		if err != nil {
			return nil, err
		}
		body, name = f, filepath.Base(location)
	}

	src, err := newSource(body)
	if err != nil {
		_ = body.Close()
		return nil, errors.Wrapf(err, "open %s", location)
	}
	src.Location = location
	src.Name = name
	return src, nil
}

// openLocal opens a regular, readable file. Anything else is ErrNotFound.
func openLocal(location string) (*os.File, error) {
	info, err := os.Stat(location)
	if err == nil && !info.Mode().IsRegular() {
		return nil, errors.Wrapf(ErrNotFound, "%s is not a regular file", location)
	}
	if err == nil {
		var f *os.File
		if f, err = os.Open(location); err == nil {
			return f, nil
		}
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return nil, errors.Wrapf(ErrNotFound, "%s: %v", location, err)
	}
	return nil, errors.Wrapf(err, "open %s", location)
}

func (o *Opener) openS3(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key, err := parseS3URL(location)
	if err != nil {
		return nil, err
	}
	if o.s3 == nil {
		return nil, errors.Errorf("no s3 client configured for %s", location)
	}
	out, err := o.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		var noBucket *types.NoSuchBucket
		if errors.As(err, &noKey) || errors.As(err, &noBucket) {
			return nil, errors.Wrapf(ErrNotFound, "%s", location)
		}
		return nil, errors.Wrapf(err, "get %s", location)
	}
	return out.Body, nil
}

// newSource sniffs the gzip magic so compressed files need no particular
// extension.
func newSource(body io.ReadCloser) (*Source, error) {
	raw := sha256.New()
	br := bufio.NewReaderSize(io.TeeReader(body, raw), 64*1024)
	s := &Source{body: body, raw: raw, r: br}

	magic, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "gzip header")
		}
		s.gz = gz
		s.r = gz
	}
	return s, nil
}
