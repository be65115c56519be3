package ingestion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/fmuoria/CV-Analyzer/internal/logging"
)

// AuthCodeFunc shows authURL to the user and returns the code they paste back
type AuthCodeFunc func(authURL string) (string, error)

// GmailHandler imports CV attachments from Gmail into upload batches
type GmailHandler struct {
	service *gmail.Service
	files   *FileHandler
}

// NewGmailHandler creates a Gmail handler from an OAuth client credentials
// file. The token is cached next to the credentials; when it is missing
// askCode is used to complete the installed-app flow.
func NewGmailHandler(ctx context.Context, credentialsPath string, files *FileHandler, askCode AuthCodeFunc) (*GmailHandler, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	tokFile := filepath.Join(filepath.Dir(credentialsPath), "token.json")
	client, err := getClient(ctx, config, tokFile, askCode)
	if err != nil {
		return nil, err
	}

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail client: %w", err)
	}

	return &GmailHandler{
		service: srv,
		files:   files,
	}, nil
}

// getClient retrieves a cached token or runs the consent flow
func getClient(ctx context.Context, config *oauth2.Config, tokFile string, askCode AuthCodeFunc) (*http.Client, error) {
	tok, err := tokenFromFile(tokFile)
	if err != nil {
		if askCode == nil {
			return nil, fmt.Errorf("no cached Gmail token at %s", tokFile)
		}
		code, err := askCode(config.AuthCodeURL("state-token", oauth2.AccessTypeOffline))
		if err != nil {
			return nil, fmt.Errorf("unable to read authorization code: %w", err)
		}
		tok, err = config.Exchange(ctx, strings.TrimSpace(code))
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
		}
		if err := saveToken(tokFile, tok); err != nil {
			return nil, err
		}
	}
	return config.Client(ctx, tok), nil
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// saveToken saves a token to a file path
func saveToken(path string, token *oauth2.Token) error {
	logging.Infof("Saving Gmail token to: %s", path)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// FetchCVs downloads PDF attachments from messages matching subject into a
// new CV batch. At most limit attachments are kept, in message order.
func (gh *GmailHandler) FetchCVs(ctx context.Context, subject string, limit int) (*Batch, error) {
	user := "me"
	query := fmt.Sprintf("subject:%q has:attachment", subject)

	r, err := gh.service.Users.Messages.List(user).Q(query).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve messages: %w", err)
	}

	if len(r.Messages) == 0 {
		return nil, fmt.Errorf("no messages found with subject: %s", subject)
	}

	var uploads []Upload
	for _, msg := range r.Messages {
		if limit > 0 && len(uploads) >= limit {
			break
		}

		message, err := gh.service.Users.Messages.Get(user, msg.Id).Context(ctx).Do()
		if err != nil {
			logging.Warnf("Unable to retrieve message %s: %v", msg.Id, err)
			continue
		}

		sender := extractSenderName(message)
		for _, part := range attachmentParts(message.Payload) {
			if !IsPDF(part.Filename, part.MimeType) {
				continue
			}

			attachment, err := gh.service.Users.Messages.Attachments.Get(user, msg.Id, part.Body.AttachmentId).Context(ctx).Do()
			if err != nil {
				logging.Warnf("Unable to retrieve attachment: %v", err)
				continue
			}

			data, err := base64.URLEncoding.DecodeString(attachment.Data)
			if err != nil {
				logging.Warnf("Unable to decode attachment: %v", err)
				continue
			}

			uploads = append(uploads, Upload{
				Name:        attachmentName(sender, part.Filename),
				ContentType: pdfMIME,
				Content:     bytes.NewReader(data),
			})
		}
	}

	uploads = LimitFiles(uploads, limit)
	if len(uploads) == 0 {
		return nil, fmt.Errorf("no PDF attachments found with subject: %s", subject)
	}

	logging.Infof("Downloaded %d CV attachment(s) from Gmail", len(uploads))
	return gh.files.SaveBatch(KindCV, uploads)
}

// attachmentParts walks the MIME tree and returns parts carrying attachments
func attachmentParts(part *gmail.MessagePart) []*gmail.MessagePart {
	if part == nil {
		return nil
	}
	var out []*gmail.MessagePart
	if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		out = append(out, part)
	}
	for _, child := range part.Parts {
		out = append(out, attachmentParts(child)...)
	}
	return out
}

func attachmentName(sender, filename string) string {
	if sender == "" || sender == "Unknown" {
		return filename
	}
	return fmt.Sprintf("%s_%s", sender, filename)
}

// extractSenderName extracts the sender's name from email headers
func extractSenderName(message *gmail.Message) string {
	if message.Payload == nil {
		return "Unknown"
	}
	for _, header := range message.Payload.Headers {
		if header.Name == "From" {
			// "Name <email@example.com>"
			from := header.Value
			if idx := strings.Index(from, "<"); idx > 0 {
				name := strings.Trim(strings.TrimSpace(from[:idx]), `"`)
				return strings.ReplaceAll(name, " ", "")
			}
			if idx := strings.Index(from, "@"); idx > 0 {
				return from[:idx]
			}
			return "Unknown"
		}
	}
	return "Unknown"
}
