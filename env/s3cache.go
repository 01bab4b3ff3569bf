package env

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nodeedge/nodeedge/iox"
)

// S3CacheConfig configures the optional S3-backed env cache. An S3Cache
// built from it and set as Options.Cache is tried by EnsureEnvDir before
// running the installer, and populated after a successful install.
type S3CacheConfig struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3CacheConfig) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// S3Cache implements Cache by tarring the env directory's node_modules into
// an S3 object keyed by the manifest signature.
type S3Cache struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Cache constructs an S3Cache using the AWS SDK's default credential
// chain, with optional region/endpoint/path-style overrides for
// S3-compatible providers (R2, MinIO).
func NewS3Cache(ctx context.Context, cfg S3CacheConfig) (*S3Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = &endpoint })
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	return &S3Cache{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (c *S3Cache) key(signature string) string {
	if c.prefix == "" {
		return signature + ".tar.gz"
	}
	return strings.TrimSuffix(c.prefix, "/") + "/" + signature + ".tar.gz"
}

// Fetch downloads and extracts a cached env tarball into destDir. Returns
// false, nil when the object does not exist (a normal cache miss, not an
// error).
func (c *S3Cache) Fetch(ctx context.Context, signature, destDir string) (bool, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(signature)),
	})
	if err != nil {
		var nf interface{ ErrorCode() string }
		if errors.As(err, &nf) && (nf.ErrorCode() == "NoSuchKey" || nf.ErrorCode() == "NotFound") {
			return false, nil
		}
		return false, fmt.Errorf("s3 get object: %w", err)
	}
	defer iox.DiscardClose(out.Body)

	if err := extractTarGz(out.Body, destDir); err != nil {
		return false, fmt.Errorf("extract cached env: %w", err)
	}
	return true, nil
}

// Store tars srcDir's node_modules and uploads it under the signature key.
func (c *S3Cache) Store(ctx context.Context, signature, srcDir string) error {
	nodeModules := filepath.Join(srcDir, "node_modules")
	if _, err := os.Stat(nodeModules); err != nil {
		return nil // nothing to cache
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(tarGzDir(pw, srcDir, []string{"node_modules", "package.json"}))
	}()

	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(signature)),
		Body:   pr,
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

func tarGzDir(w io.Writer, root string, entries []string) error {
	gzw := gzip.NewWriter(w)
	defer iox.DiscardClose(gzw)
	tw := tar.NewWriter(gzw)
	defer iox.DiscardClose(tw)

	for _, entry := range entries {
		path := filepath.Join(root, entry)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = rel
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			defer iox.DiscardClose(f)
			_, err = io.Copy(tw, f)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTarGz(r io.Reader, destDir string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(gzr)
	tr := tar.NewReader(gzr)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(destDir, hdr.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("tar entry escapes destination: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				iox.DiscardClose(f)
				return err
			}
			iox.DiscardClose(f)
		}
	}
}
