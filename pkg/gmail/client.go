// Package gmail creates Gmail drafts from reviewed outreach emails.
package gmail

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const user = "me"

// ErrNoToken is returned when the OAuth token file does not exist yet.
var ErrNoToken = eris.New("gmail: no oauth token; run `outreach drafts --auth` first")

// Client creates drafts in the authenticated user's mailbox.
type Client interface {
	CreateDraft(ctx context.Context, msg Message) (string, error)
}

// Message is a plain-text email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

type serviceClient struct {
	srv *gm.Service
}

// NewClient builds a client from an OAuth client secret file and a saved token.
func NewClient(ctx context.Context, credentialsFile, tokenFile string) (Client, error) {
	cfg, err := oauthConfig(credentialsFile)
	if err != nil {
		return nil, err
	}
	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, err
	}
	srv, err := gm.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
	if err != nil {
		return nil, eris.Wrap(err, "gmail: create service")
	}
	return &serviceClient{srv: srv}, nil
}

// NewWithService wraps an existing Gmail service.
func NewWithService(srv *gm.Service) Client {
	return &serviceClient{srv: srv}
}

func (c *serviceClient) CreateDraft(ctx context.Context, msg Message) (string, error) {
	if strings.TrimSpace(msg.To) == "" {
		return "", eris.New("gmail: draft has no recipient")
	}
	draft, err := c.srv.Users.Drafts.Create(user, &gm.Draft{
		Message: &gm.Message{Raw: EncodeRaw(msg)},
	}).Context(ctx).Do()
	if err != nil {
		return "", eris.Wrapf(err, "gmail: create draft for %s", msg.To)
	}
	return draft.Id, nil
}

// EncodeRaw renders msg as an RFC 2822 message in base64url, as the Gmail
// API expects in Message.Raw.
func EncodeRaw(msg Message) string {
	var b strings.Builder
	if msg.From != "" {
		fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	}
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}

func oauthConfig(credentialsFile string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, eris.Wrapf(err, "gmail: read client secret %s", credentialsFile)
	}
	cfg, err := google.ConfigFromJSON(b, gm.GmailComposeScope)
	if err != nil {
		return nil, eris.Wrap(err, "gmail: parse client secret")
	}
	return cfg, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, eris.Wrapf(err, "gmail: open token %s", path)
	}
	defer f.Close() //nolint:errcheck

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, eris.Wrap(err, "gmail: decode token")
	}
	return tok, nil
}

// Authorize runs the installed-app OAuth flow: it prints the consent URL to
// out, reads the authorization code from in, and saves the token to tokenFile.
func Authorize(ctx context.Context, credentialsFile, tokenFile string, in io.Reader, out io.Writer) error {
	cfg, err := oauthConfig(credentialsFile)
	if err != nil {
		return err
	}

	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Open this link in your browser, then paste the authorization code:\n%s\n", authURL) //nolint:errcheck

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return eris.Wrap(err, "gmail: read authorization code")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return eris.New("gmail: empty authorization code")
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return eris.Wrap(err, "gmail: exchange authorization code")
	}

	f, err := os.OpenFile(tokenFile, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return eris.Wrapf(err, "gmail: save token %s", tokenFile)
	}
	defer f.Close() //nolint:errcheck
	return eris.Wrap(json.NewEncoder(f).Encode(tok), "gmail: encode token")
}
