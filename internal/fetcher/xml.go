package fetcher

import (
	"encoding/xml"
	"errors"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// NewXMLDecoder returns an xml.Decoder that understands every charset named
// in an XML declaration that htmlindex knows about.
func NewXMLDecoder(r io.Reader) *xml.Decoder {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return decoder
}

// DecodeElements decodes every element with the given local name, at any
// depth, into a T.
func DecodeElements[T any](r io.Reader, elementName string) ([]T, error) {
	decoder := NewXMLDecoder(r)
	var out []T
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "xml: read token")
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != elementName {
			continue
		}
		var item T
		if err := decoder.DecodeElement(&item, &se); err != nil {
			return nil, eris.Wrap(err, "xml: decode element")
		}
		out = append(out, item)
	}
}

// IsSyntaxError reports whether err originates from malformed XML rather than
// from reading the input.
func IsSyntaxError(err error) bool {
	var se *xml.SyntaxError
	return errors.As(err, &se)
}
