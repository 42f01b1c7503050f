package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"hmac-gateway/internal/signature"
)

// Version is set via -ldflags.
var Version = "dev"

// requestFlags describe the request being signed or checked.
type requestFlags struct {
	method     string
	target     string
	body       string
	bodyFile   string
	secret     string
	bodyMode   string
	signedDate string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.method, "method", "X", "GET", "HTTP method")
	cmd.Flags().StringVar(&f.target, "url", "", "request path with optional query, or a full URL (required)")
	cmd.Flags().StringVarP(&f.body, "data", "d", "", "request body")
	cmd.Flags().StringVar(&f.bodyFile, "data-file", "", "read the request body from a file ('-' for stdin)")
	cmd.Flags().StringVar(&f.secret, "secret", "", "shared secret (or set HMAC_SECRET)")
	cmd.Flags().StringVar(&f.bodyMode, "body-mode", "digest", "body field: digest or canonical")
	_ = cmd.MarkFlagRequired("url")
}

func (f *requestFlags) resolveSecret() (string, error) {
	secret := f.secret
	if secret == "" {
		secret = os.Getenv("HMAC_SECRET")
	}
	if secret == "" {
		return "", fmt.Errorf("a secret is required: pass --secret or set HMAC_SECRET")
	}
	return secret, nil
}

func (f *requestFlags) readBody(stdin io.Reader) ([]byte, error) {
	switch f.bodyFile {
	case "":
		return []byte(f.body), nil
	case "-":
		return io.ReadAll(stdin)
	default:
		return os.ReadFile(f.bodyFile)
	}
}

func (f *requestFlags) signingContext(stdin io.Reader, idempotencyKey, signedDate string) (signature.SigningContext, error) {
	u, err := url.Parse(f.target)
	if err != nil {
		return signature.SigningContext{}, fmt.Errorf("invalid --url: %w", err)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	body, err := f.readBody(stdin)
	if err != nil {
		return signature.SigningContext{}, fmt.Errorf("read body: %w", err)
	}

	var mode signature.BodyMode
	switch strings.ToLower(f.bodyMode) {
	case "digest":
		mode = signature.BodyModeDigest
	case "canonical":
		mode = signature.BodyModeCanonical
	default:
		return signature.SigningContext{}, fmt.Errorf("--body-mode must be digest or canonical")
	}

	return signature.NewSigningContext(strings.ToUpper(f.method), path, u.RawQuery, idempotencyKey, body, signedDate, mode), nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "hmacsign",
		Short:        "Sign and verify HMAC gateway requests",
		SilenceUsage: true,
		Version:      Version,
	}
	root.SetVersionTemplate("hmacsign {{.Version}}\n")

	root.AddCommand(newSignCmd(), newVerifyCmd(), newVersionCmd())
	return root
}

func newSignCmd() *cobra.Command {
	var (
		req            requestFlags
		accessKey      string
		algorithm      string
		idempotencyKey string
		showCanonical  bool
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print the Authorization header for a request",
		Example: `  hmacsign sign --access-key ak_live_123 --secret s3cr3t -X POST \
    --url '/api/v1/payments?orderId=123' -d '{"amount":1000}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := req.resolveSecret()
			if err != nil {
				return err
			}
			alg, err := signature.ParseAlgorithm(algorithm)
			if err != nil {
				return err
			}
			if idempotencyKey == "" {
				idempotencyKey = uuid.NewString()
			}
			signedDate := req.signedDate
			if signedDate == "" {
				signedDate = time.Now().Format(time.RFC3339)
			}

			sc, err := req.signingContext(cmd.InOrStdin(), idempotencyKey, signedDate)
			if err != nil {
				return err
			}
			sig, err := signature.Sign(alg, secret, sc)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n", signature.HeaderName, signature.FormatAuthorization(signature.Credentials{
				Algorithm:      alg,
				AccessKey:      accessKey,
				Signature:      sig,
				SignedDate:     signedDate,
				IdempotencyKey: idempotencyKey,
			}))
			if alg.IsLegacy() {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s is a legacy algorithm and is rejected by default\n", alg)
			}
			if showCanonical {
				fmt.Fprintf(out, "\nCanonical string:\n%s\n", sc.String())
			}
			return nil
		},
	}

	req.register(cmd)
	cmd.Flags().StringVar(&accessKey, "access-key", "", "access key (required)")
	cmd.Flags().StringVar(&algorithm, "algorithm", string(signature.DefaultAlgorithm), "HmacSHA256, HmacSHA384 or HmacSHA512")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "idempotency key (default: random UUID)")
	cmd.Flags().StringVar(&req.signedDate, "signed-date", "", "ISO-8601 timestamp with offset (default: now)")
	cmd.Flags().BoolVar(&showCanonical, "canonical", false, "also print the canonical signing string")
	_ = cmd.MarkFlagRequired("access-key")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var (
		req    requestFlags
		header string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check an Authorization header against a request and secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := req.resolveSecret()
			if err != nil {
				return err
			}
			creds, err := signature.ParseAuthorization(strings.TrimPrefix(header, signature.HeaderName+": "))
			if err != nil {
				return err
			}

			sc, err := req.signingContext(cmd.InOrStdin(), creds.IdempotencyKey, creds.SignedDate)
			if err != nil {
				return err
			}
			if !signature.Verify(creds.Algorithm, secret, sc, creds.Signature) {
				fmt.Fprintf(cmd.OutOrStdout(), "Canonical string:\n%s\n", sc.String())
				return fmt.Errorf("signature mismatch")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signature valid")
			return nil
		},
	}

	req.register(cmd)
	cmd.Flags().StringVar(&header, "header", "", "Authorization header value (required)")
	_ = cmd.MarkFlagRequired("header")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hmacsign %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
