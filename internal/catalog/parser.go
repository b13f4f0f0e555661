// Package catalog implements the streaming FSNB-2022 catalog parser.
// It turns a directory of vendor XML files into a flat, lazy sequence of
// normalized item records without ever materializing a whole document:
// catalogs run to hundreds of thousands of entries, so parsing is strictly
// token-by-token over [encoding/xml].
//
// Two document shapes are recognized by their root tag:
//
//   - "base" — a works catalog. Work elements carry Code/EndName/MeasureUnit
//     attributes and are nested under NameGroup elements whose BeginName
//     supplies a name prefix. The effective name is "BeginName EndName"
//     (prefix omitted when the group has none).
//   - "ResourceCatalog" — a resources catalog. Each Resource element stands
//     alone with Code/Name/MeasureUnit attributes.
//
// Files with any other root tag are skipped entirely. Records missing a
// code or a name are skipped silently — vendor dumps routinely contain
// service entries.
package catalog

import (
	"encoding/xml"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Kind distinguishes the two FSNB item categories.
type Kind string

const (
	// KindWork is a priced construction work (расценка).
	KindWork Kind = "work"
	// KindResource is a priced material or machine resource.
	KindResource Kind = "resource"
)

// Record is one normalized catalog entry produced by the parser.
type Record struct {
	// Code is the FSNB catalog code, e.g. "ФЕР01-01-001-01".
	Code string
	// Name is the full display name (group prefix + own fragment for works).
	Name string
	// Unit is the unit of measure, empty when the source omits it.
	Unit string
	// Kind is work or resource, derived from the document shape.
	Kind Kind
}

// Stream returns a lazy sequence of records parsed from every *.xml file in
// dir, in filename order. The returned sequence is finite and single-use.
//
// Infrastructure failures are loud: a missing directory or a directory with
// no XML files is an immediate error, and a file that cannot be opened is
// yielded as a non-nil error that terminates the sequence. Malformed
// individual records are skipped without error.
func Stream(dir string) (iter.Seq2[Record, error], error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog: read dir %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("catalog: no .xml files in %s", dir)
	}
	sort.Strings(files)

	seq := func(yield func(Record, error) bool) {
		for _, path := range files {
			if !streamFile(path, yield) {
				return
			}
		}
	}
	return seq, nil
}

// streamFile parses one XML file and pushes its records into yield.
// It returns false when the consumer stopped iterating (or after a fatal
// error was delivered), true when the file is exhausted.
func streamFile(path string, yield func(Record, error) bool) bool {
	f, err := os.Open(path)
	if err != nil {
		yield(Record{}, fmt.Errorf("catalog: open %s: %w", path, err))
		return false
	}
	defer f.Close()

	dec := xml.NewDecoder(f)

	// Read tokens only as far as the root element to classify the document.
	root, err := rootTag(dec)
	if err != nil {
		// Not parseable as XML at all — treat like an unrecognized shape.
		return true
	}

	switch root {
	case "base":
		return streamWorks(dec, yield)
	case "ResourceCatalog":
		return streamResources(dec, yield)
	default:
		return true
	}
}

// rootTag consumes tokens until the first start element and returns its name.
func rootTag(dec *xml.Decoder) (string, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}

// streamWorks parses a "base" document: NameGroup elements supply a BeginName
// prefix for the Work elements nested beneath them. Prefixes nest, so a stack
// mirrors the open NameGroup elements.
func streamWorks(dec *xml.Decoder, yield func(Record, error) bool) bool {
	var prefixes []string

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return true
		}
		if err != nil {
			// Truncated or malformed tail; everything parsed so far stands.
			return true
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "NameGroup":
				prefixes = append(prefixes, attr(el, "BeginName"))
			case "Work":
				code := attr(el, "Code")
				endName := attr(el, "EndName")
				if code == "" || endName == "" {
					continue
				}
				name := endName
				if n := len(prefixes); n > 0 && prefixes[n-1] != "" {
					name = prefixes[n-1] + " " + endName
				}
				rec := Record{
					Code: code,
					Name: name,
					Unit: attr(el, "MeasureUnit"),
					Kind: KindWork,
				}
				if !yield(rec, nil) {
					return false
				}
			}
		case xml.EndElement:
			if el.Name.Local == "NameGroup" && len(prefixes) > 0 {
				prefixes = prefixes[:len(prefixes)-1]
			}
		}
	}
}

// streamResources parses a "ResourceCatalog" document: every Resource element
// is self-contained.
func streamResources(dec *xml.Decoder, yield func(Record, error) bool) bool {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return true
		}
		if err != nil {
			return true
		}

		el, ok := tok.(xml.StartElement)
		if !ok || el.Name.Local != "Resource" {
			continue
		}

		code := attr(el, "Code")
		name := attr(el, "Name")
		if code == "" || name == "" {
			continue
		}
		rec := Record{
			Code: code,
			Name: name,
			Unit: attr(el, "MeasureUnit"),
			Kind: KindResource,
		}
		if !yield(rec, nil) {
			return false
		}
	}
}

// attr returns the trimmed value of the named attribute, or "".
func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}
