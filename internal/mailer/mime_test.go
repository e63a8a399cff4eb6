package mailer

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outbox/backend/internal/domain"
)

type fakeBlobs map[string][]byte

func (f fakeBlobs) Get(hash string) ([]byte, error) {
	data, ok := f[hash]
	if !ok {
		return nil, domain.ErrBlobNotFound
	}
	return data, nil
}

func testMessage() *domain.Message {
	return &domain.Message{
		UUID:         "11111111-2222-3333-4444-555555555555",
		FromAddress:  "noreply@example.com",
		ToRecipients: domain.EncodeRecipients([]string{"alice@example.com", "bob@example.com"}),
		CcRecipients: domain.EncodeRecipients([]string{"carol@example.com"}),
		Subject:      "deploy finished",
		Body:         "all green",
		BodyType:     domain.BodyPlain,
	}
}

func TestRenderBody(t *testing.T) {
	t.Run("纯文本原样保留", func(t *testing.T) {
		body := RenderBody("hello", domain.BodyPlain)
		assert.Equal(t, "hello", body.Plain)
		assert.Empty(t, body.HTML)
	})

	t.Run("HTML只有HTML部分", func(t *testing.T) {
		body := RenderBody("<p>hi</p>", domain.BodyHTML)
		assert.Empty(t, body.Plain)
		assert.Equal(t, "<p>hi</p>", body.HTML)
	})

	t.Run("Markdown渲染并保留原文", func(t *testing.T) {
		body := RenderBody("# Title\n\nsome *text*", domain.BodyMarkdown)
		assert.Equal(t, "# Title\n\nsome *text*", body.Plain)
		assert.Contains(t, body.HTML, "<h1>Title</h1>")
		assert.Contains(t, body.HTML, "<em>text</em>")
	})
}

func TestBuildMIME(t *testing.T) {
	t.Run("无附件的纯文本", func(t *testing.T) {
		raw, err := BuildMIME(testMessage(), fakeBlobs{})
		require.NoError(t, err)

		parsed, err := mail.ReadMessage(bytes.NewReader(raw))
		require.NoError(t, err)
		assert.Equal(t, "noreply@example.com", parsed.Header.Get("From"))
		assert.Equal(t, "alice@example.com, bob@example.com", parsed.Header.Get("To"))
		assert.Equal(t, "carol@example.com", parsed.Header.Get("Cc"))
		assert.Contains(t, parsed.Header.Get("Content-Type"), "text/plain")
		assert.NotEmpty(t, parsed.Header.Get("Message-ID"))

		body, err := io.ReadAll(parsed.Body)
		require.NoError(t, err)
		assert.Equal(t, "all green", string(body))
	})

	t.Run("Bcc不出现在报文头", func(t *testing.T) {
		msg := testMessage()
		msg.BccRecipients = domain.EncodeRecipients([]string{"hidden@example.com"})
		raw, err := BuildMIME(msg, fakeBlobs{})
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "hidden@example.com")
	})

	t.Run("Markdown产生alternative两部分", func(t *testing.T) {
		msg := testMessage()
		msg.Body = "# Hi"
		msg.BodyType = domain.BodyMarkdown
		raw, err := BuildMIME(msg, fakeBlobs{})
		require.NoError(t, err)

		parsed, err := mail.ReadMessage(bytes.NewReader(raw))
		require.NoError(t, err)
		mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
		require.NoError(t, err)
		require.Equal(t, "multipart/alternative", mediaType)

		reader := multipart.NewReader(parsed.Body, params["boundary"])
		plain, err := reader.NextPart()
		require.NoError(t, err)
		assert.Contains(t, plain.Header.Get("Content-Type"), "text/plain")
		html, err := reader.NextPart()
		require.NoError(t, err)
		assert.Contains(t, html.Header.Get("Content-Type"), "text/html")
		htmlBody, err := io.ReadAll(html)
		require.NoError(t, err)
		assert.Contains(t, string(htmlBody), "<h1>Hi</h1>")
	})

	t.Run("附件内联为base64", func(t *testing.T) {
		payload := []byte("attachment payload bytes")
		msg := testMessage()
		msg.Attachments = []domain.Attachment{{
			Filename:    "report.txt",
			ContentType: "text/plain",
			SizeBytes:   int64(len(payload)),
			SHA256:      "abc123",
		}}
		raw, err := BuildMIME(msg, fakeBlobs{"abc123": payload})
		require.NoError(t, err)

		parsed, err := mail.ReadMessage(bytes.NewReader(raw))
		require.NoError(t, err)
		mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
		require.NoError(t, err)
		require.Equal(t, "multipart/mixed", mediaType)

		reader := multipart.NewReader(parsed.Body, params["boundary"])
		body, err := reader.NextPart()
		require.NoError(t, err)
		assert.Contains(t, body.Header.Get("Content-Type"), "text/plain")

		att, err := reader.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "report.txt", att.FileName())
		encoded, err := io.ReadAll(att)
		require.NoError(t, err)
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(string(encoded), "\r\n", ""))
		require.NoError(t, err)
		assert.Equal(t, payload, decoded)
	})

	t.Run("blob缺失投递失败", func(t *testing.T) {
		msg := testMessage()
		msg.Attachments = []domain.Attachment{{
			Filename: "gone.bin",
			SHA256:   "missing",
		}}
		_, err := BuildMIME(msg, fakeBlobs{})
		require.ErrorIs(t, err, domain.ErrBlobNotFound)
	})
}
