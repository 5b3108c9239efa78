package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/chadiek/callscreen/internal/phone"
)

// TranscribeAudio transcribes and summarizes the recording at path and
// re-classifies the caller from what was said.
func (c *Client) TranscribeAudio(ctx context.Context, path string, number phone.Number) (Transcription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Transcription{}, fmt.Errorf("classify: read audio: %w", err)
	}
	if len(data) == 0 {
		return Transcription{}, fmt.Errorf("classify: audio %s is empty", path)
	}
	mimeType := audioMimeType(path)

	audio := part{InlineData: &blob{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(data)}}
	if c.InlineLimit > 0 && int64(len(data)) >= c.InlineLimit {
		ref, err := c.upload(ctx, filepath.Base(path), mimeType, data)
		if err != nil {
			return Transcription{}, err
		}
		audio = part{FileData: &fileData{MimeType: ref.MimeType, FileURI: ref.URI}}
	}

	raw, err := c.generate(ctx, "transcribe", []part{{Text: transcriptionPrompt(number)}, audio})
	if err != nil {
		return Transcription{}, err
	}
	return parseTranscription(raw), nil
}

type fileRef struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
}

type uploadResponse struct {
	File fileRef `json:"file"`
}

// upload sends raw bytes as a multipart (metadata + media) upload and
// returns the opaque file reference the service assigned.
func (c *Client) upload(ctx context.Context, name, mimeType string, data []byte) (fileRef, error) {
	if c.APIKey == "" {
		return fileRef{}, errors.New("classify: api key missing")
	}
	meta, err := json.Marshal(map[string]any{"file": map[string]string{"displayName": name}})
	if err != nil {
		return fileRef{}, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	metaPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=utf-8"}})
	if err != nil {
		return fileRef{}, err
	}
	if _, err := metaPart.Write(meta); err != nil {
		return fileRef{}, err
	}
	mediaPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {mimeType}})
	if err != nil {
		return fileRef{}, err
	}
	if _, err := mediaPart.Write(data); err != nil {
		return fileRef{}, err
	}
	if err := mw.Close(); err != nil {
		return fileRef{}, err
	}
	payload := body.Bytes()
	contentType := "multipart/related; boundary=" + mw.Boundary()
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/upload/v1beta/files"

	var ur uploadResponse
	err = c.withRetry(ctx, "upload", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("X-Goog-Upload-Protocol", "multipart")
		req.Header.Set("x-goog-api-key", c.APIKey)
		return c.doJSON(req, &ur)
	})
	record("upload", err)
	if err != nil {
		return fileRef{}, err
	}
	if ur.File.URI == "" {
		return fileRef{}, errors.New("classify: upload returned no file uri")
	}
	if ur.File.MimeType == "" {
		ur.File.MimeType = mimeType
	}
	return ur.File, nil
}

func audioMimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".amr":
		return "audio/amr"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".3gp":
		return "audio/3gpp"
	default:
		return "audio/wav"
	}
}

func transcriptionPrompt(number phone.Number) string {
	return fmt.Sprintf(`The attached audio is a recorded screening of an incoming call from %s. The caller was asked for their name and the reason for the call.
Transcribe what the caller says, summarize it in one sentence, and decide whether the call is unwanted (spam, robocall, telemarketing, scam).
Answer only with JSON: {"transcription": "...", "summary": "...", "isSpam": true|false, "spamConfidence": number between 0 and 1}`, number)
}
