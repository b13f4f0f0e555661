package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeCatalogDir creates a temp directory containing the given files.
func writeCatalogDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

// collect drains the sequence, failing the test on any yielded error.
func collect(t *testing.T, dir string) []Record {
	t.Helper()
	seq, err := Stream(dir)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	var out []Record
	for rec, err := range seq {
		if err != nil {
			t.Fatalf("unexpected record error: %v", err)
		}
		out = append(out, rec)
	}
	return out
}

func Test_Stream_WorksCatalogPrefixesNames(t *testing.T) {
	t.Parallel()

	dir := writeCatalogDir(t, map[string]string{
		"works.xml": `<?xml version="1.0" encoding="UTF-8"?>
<base>
  <Chapter>
    <NameGroup BeginName="Разработка грунта">
      <Work Code="ФЕР01-01-001-01" EndName="вручную" MeasureUnit="100 м3"/>
      <Work Code="ФЕР01-01-001-02" EndName="экскаватором" MeasureUnit="1000 м3"/>
    </NameGroup>
    <NameGroup>
      <Work Code="ФЕР01-02-001-01" EndName="Планировка площадей" MeasureUnit="1000 м2"/>
    </NameGroup>
  </Chapter>
</base>`,
	})

	recs := collect(t, dir)
	if len(recs) != 3 {
		t.Fatalf("want 3 records, got %d: %+v", len(recs), recs)
	}
	if recs[0].Name != "Разработка грунта вручную" {
		t.Errorf("prefixed name: got %q", recs[0].Name)
	}
	if recs[0].Kind != KindWork || recs[0].Unit != "100 м3" {
		t.Errorf("record fields: %+v", recs[0])
	}
	// An empty BeginName must not introduce a leading space.
	if recs[2].Name != "Планировка площадей" {
		t.Errorf("unprefixed name: got %q", recs[2].Name)
	}
}

func Test_Stream_NestedNameGroupsUseInnermostPrefix(t *testing.T) {
	t.Parallel()

	dir := writeCatalogDir(t, map[string]string{
		"nested.xml": `<base>
  <NameGroup BeginName="Устройство">
    <NameGroup BeginName="Устройство полов">
      <Work Code="W1" EndName="бетонных" MeasureUnit="м2"/>
    </NameGroup>
    <Work Code="W2" EndName="перегородок" MeasureUnit="м2"/>
  </NameGroup>
</base>`,
	})

	recs := collect(t, dir)
	if len(recs) != 2 {
		t.Fatalf("want 2 records, got %d", len(recs))
	}
	if recs[0].Name != "Устройство полов бетонных" {
		t.Errorf("inner prefix: got %q", recs[0].Name)
	}
	if recs[1].Name != "Устройство перегородок" {
		t.Errorf("outer prefix after inner group closed: got %q", recs[1].Name)
	}
}

func Test_Stream_ResourceCatalog(t *testing.T) {
	t.Parallel()

	dir := writeCatalogDir(t, map[string]string{
		"res.xml": `<ResourceCatalog>
  <Section>
    <Resource Code="R001" Name="Резистор 10к" MeasureUnit="шт"/>
    <Resource Code="" Name="без кода"/>
    <Resource Code="R002" Name="Кабель ВВГнг(А)-LS 3х2.5" MeasureUnit="м"/>
  </Section>
</ResourceCatalog>`,
	})

	recs := collect(t, dir)
	if len(recs) != 2 {
		t.Fatalf("codeless record not skipped: got %d records", len(recs))
	}
	if recs[0].Code != "R001" || recs[0].Kind != KindResource {
		t.Errorf("record fields: %+v", recs[0])
	}
}

func Test_Stream_UnrecognizedRootSkipped(t *testing.T) {
	t.Parallel()

	dir := writeCatalogDir(t, map[string]string{
		"other.xml": `<PriceList><Entry Code="X" Name="Y"/></PriceList>`,
		"junk.xml":  `this is not xml at all`,
		"res.xml":   `<ResourceCatalog><Resource Code="R1" Name="N1"/></ResourceCatalog>`,
	})

	recs := collect(t, dir)
	if len(recs) != 1 || recs[0].Code != "R1" {
		t.Fatalf("want only the resource record, got %+v", recs)
	}
}

func Test_Stream_MissingDirFailsLoud(t *testing.T) {
	t.Parallel()

	if _, err := Stream("/nonexistent/fsnb"); err == nil {
		t.Fatal("expected error for missing directory")
	}

	empty := t.TempDir()
	if _, err := Stream(empty); err == nil {
		t.Fatal("expected error for directory without xml files")
	}
}

func Test_Stream_LargeFileStaysLazy(t *testing.T) {
	t.Parallel()

	// 100k works in one file; the sequence must be consumable incrementally
	// and stoppable early without reading everything.
	var sb strings.Builder
	sb.WriteString(`<base><NameGroup BeginName="Монтаж">`)
	for i := range 100_000 {
		fmt.Fprintf(&sb, `<Work Code="W%06d" EndName="позиция %d" MeasureUnit="шт"/>`, i, i)
	}
	sb.WriteString(`</NameGroup></base>`)

	dir := writeCatalogDir(t, map[string]string{"big.xml": sb.String()})

	seq, err := Stream(dir)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	count := 0
	for rec, err := range seq {
		if err != nil {
			t.Fatalf("record error at %d: %v", count, err)
		}
		if rec.Code == "" {
			t.Fatalf("empty code at %d", count)
		}
		count++
		if count == 1000 {
			break // early stop must not panic or leak
		}
	}
	if count != 1000 {
		t.Fatalf("early stop: got %d records", count)
	}

	// Full drain for the count check.
	seq2, err := Stream(dir)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	total := 0
	for _, err := range seq2 {
		if err != nil {
			t.Fatalf("record error: %v", err)
		}
		total++
	}
	if total != 100_000 {
		t.Fatalf("want 100000 records, got %d", total)
	}
}
