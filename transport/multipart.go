package transport

import (
	"bytes"
	"io"
	"mime/multipart"
	"sort"

	"github.com/pkg/errors"
)

// File is one binary part of a multipart body.
type File struct {
	Field   string
	Name    string
	Content io.Reader
}

// Multipart is a request body sent as multipart/form-data. The transport lets
// the encoder choose the Content-Type so the boundary is included.
type Multipart struct {
	Fields map[string]string
	Files  []File
}

func NewMultipart() *Multipart {
	return &Multipart{Fields: make(map[string]string)}
}

// Field sets a text field. An empty value is sent as an empty part.
func (m *Multipart) Field(name, value string) *Multipart {
	m.Fields[name] = value
	return m
}

func (m *Multipart) File(field, filename string, content io.Reader) *Multipart {
	m.Files = append(m.Files, File{Field: field, Name: filename, Content: content})
	return m
}

func (m *Multipart) encode() (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	names := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := w.WriteField(name, m.Fields[name]); err != nil {
			return nil, "", errors.Wrapf(err, "[Multipart.encode] field %s", name)
		}
	}

	for _, f := range m.Files {
		part, err := w.CreateFormFile(f.Field, f.Name)
		if err != nil {
			return nil, "", errors.Wrapf(err, "[Multipart.encode] file %s", f.Field)
		}
		if f.Content != nil {
			if _, err := io.Copy(part, f.Content); err != nil {
				return nil, "", errors.Wrapf(err, "[Multipart.encode] copy %s", f.Name)
			}
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", errors.Wrap(err, "[Multipart.encode] close")
	}
	return buf, w.FormDataContentType(), nil
}
