package eutils

import (
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"io"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/urbanscope/harvester/internal/model"
)

// Summary is one parsed SRA esummary document: the entry title, a flattened
// item map, and a best-effort accession extracted from any item value.
type Summary struct {
	UID            string
	Title          string
	AccessionGuess string
	Items          map[string]string
}

// ItemText flattens the summary items into one searchable string, in item
// name order.
func (s Summary) ItemText() string {
	if len(s.Items) == 0 {
		return ""
	}
	names := make([]string, 0, len(s.Items))
	for name := range s.Items {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+s.Items[name])
	}
	return strings.Join(parts, " ; ")
}

// ProjectSummary is the parsed BioProject esummary payload.
type ProjectSummary struct {
	UID            string
	Accession      string
	Title          string
	Description    string
	Organism       string
	DataType       string
	SubmissionDate string
	LastUpdate     string
	CenterName     string
}

// SampleDetail is the parsed BioSample efetch payload.
type SampleDetail struct {
	Title      string
	Organism   string
	Attributes map[string]string
}

// newDecoder returns an XML decoder that handles non-UTF-8 charsets declared
// by the upstream.
func newDecoder(r io.Reader) *xml.Decoder {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "eutils: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return dec
}

type esearchResult struct {
	IDs   []string
	Count int
}

func parseESearch(body []byte) (esearchResult, error) {
	var doc struct {
		Count int      `xml:"Count"`
		IDs   []string `xml:"IdList>Id"`
	}
	if err := newDecoder(bytes.NewReader(body)).Decode(&doc); err != nil {
		return esearchResult{}, eris.Wrap(err, "eutils: parse esearch")
	}
	ids := make([]string, 0, len(doc.IDs))
	for _, id := range doc.IDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return esearchResult{IDs: ids, Count: doc.Count}, nil
}

func parseELink(body []byte) ([]string, error) {
	var doc struct {
		LinkSets []struct {
			LinkSetDBs []struct {
				IDs []string `xml:"Link>Id"`
			} `xml:"LinkSetDb"`
		} `xml:"LinkSet"`
	}
	if err := newDecoder(bytes.NewReader(body)).Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "eutils: parse elink")
	}
	var ids []string
	for _, ls := range doc.LinkSets {
		for _, db := range ls.LinkSetDBs {
			for _, id := range db.IDs {
				if id = strings.TrimSpace(id); id != "" {
					ids = append(ids, id)
				}
			}
		}
	}
	return ids, nil
}

// docSumItem is one Item element of a legacy DocSum document. Items nest;
// nested item texts are flattened into the parent value.
type docSumItem struct {
	Name  string       `xml:"Name,attr"`
	Text  string       `xml:",chardata"`
	Items []docSumItem `xml:"Item"`
}

func (it docSumItem) value() string {
	if len(it.Items) == 0 {
		return strings.TrimSpace(it.Text)
	}
	var parts []string
	for _, sub := range it.Items {
		if v := sub.value(); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(it.Text)
	}
	return strings.Join(parts, " | ")
}

func parseSRASummaries(body []byte) (map[string]Summary, error) {
	var doc struct {
		DocSums []struct {
			ID    string       `xml:"Id"`
			Items []docSumItem `xml:"Item"`
		} `xml:"DocSum"`
	}
	if err := newDecoder(bytes.NewReader(body)).Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "eutils: parse sra esummary")
	}

	out := make(map[string]Summary, len(doc.DocSums))
	for _, d := range doc.DocSums {
		uid := strings.TrimSpace(d.ID)
		if uid == "" {
			continue
		}
		items := make(map[string]string, len(d.Items))
		for _, it := range d.Items {
			if it.Name == "" {
				continue
			}
			items[it.Name] = it.value()
		}

		// Item names are visited in sorted order so the guess is stable
		// when several values carry an accession.
		names := make([]string, 0, len(items))
		for name := range items {
			names = append(names, name)
		}
		sort.Strings(names)
		guess := ""
		for _, name := range names {
			if m := model.AccessionPattern.FindString(items[name]); m != "" {
				guess = strings.ToUpper(m)
				break
			}
		}

		out[uid] = Summary{
			UID:            uid,
			Title:          strings.TrimSpace(items["Title"]),
			AccessionGuess: guess,
			Items:          items,
		}
	}
	return out, nil
}

func parseRunInfo(body []byte, maxRows int) ([]map[string]string, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1 // upstream rows occasionally drop trailing fields
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "eutils: parse runinfo header")
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "eutils: parse runinfo row")
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, row)
		if maxRows > 0 && len(rows) >= maxRows {
			break
		}
	}
	return rows, nil
}

func parseSampleDetail(body []byte) (*SampleDetail, error) {
	var doc struct {
		Samples []struct {
			Title    string `xml:"Description>Title"`
			Organism struct {
				Name     string `xml:"OrganismName"`
				TaxoName string `xml:"taxonomy_name,attr"`
			} `xml:"Description>Organism"`
			Attributes []struct {
				Name           string `xml:"attribute_name,attr"`
				HarmonizedName string `xml:"harmonized_name,attr"`
				Value          string `xml:",chardata"`
			} `xml:"Attributes>Attribute"`
		} `xml:"BioSample"`
	}
	if err := newDecoder(bytes.NewReader(body)).Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "eutils: parse biosample")
	}
	if len(doc.Samples) == 0 {
		return &SampleDetail{Attributes: map[string]string{}}, nil
	}

	s := doc.Samples[0]
	detail := &SampleDetail{
		Title:      strings.TrimSpace(s.Title),
		Attributes: make(map[string]string, len(s.Attributes)),
	}
	detail.Organism = strings.TrimSpace(s.Organism.Name)
	if detail.Organism == "" {
		detail.Organism = strings.TrimSpace(s.Organism.TaxoName)
	}
	for _, a := range s.Attributes {
		key := strings.TrimSpace(a.Name)
		if key == "" {
			key = strings.TrimSpace(a.HarmonizedName)
		}
		val := strings.TrimSpace(a.Value)
		if key != "" && val != "" {
			detail.Attributes[key] = val
		}
	}
	return detail, nil
}

// xmlNode is a generic DOM node used only for the BioProject esummary, whose
// document shape has changed three times and cannot be covered by one typed
// struct.
type xmlNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Text    string     `xml:",chardata"`
	Nodes   []xmlNode  `xml:",any"`
}

func (n *xmlNode) child(name string) *xmlNode {
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == name {
			return &n.Nodes[i]
		}
	}
	return nil
}

// find walks a path of child element names.
func (n *xmlNode) find(path ...string) *xmlNode {
	cur := n
	for _, name := range path {
		if cur = cur.child(name); cur == nil {
			return nil
		}
	}
	return cur
}

func (n *xmlNode) text(path ...string) string {
	if found := n.find(path...); found != nil {
		return strings.TrimSpace(found.Text)
	}
	return ""
}

func (n *xmlNode) attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}

// descendant returns the first element with the given name anywhere below n.
func (n *xmlNode) descendant(name string) *xmlNode {
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == name {
			return &n.Nodes[i]
		}
		if found := n.Nodes[i].descendant(name); found != nil {
			return found
		}
	}
	return nil
}

func parseProjectSummary(uid string, body []byte) (*ProjectSummary, error) {
	var root xmlNode
	if err := newDecoder(bytes.NewReader(body)).Decode(&root); err != nil {
		return nil, eris.Wrap(err, "eutils: parse bioproject esummary")
	}

	// Rich DocumentSummary with a nested Project element.
	if ds := root.descendant("DocumentSummary"); ds != nil {
		if proj := ds.child("Project"); proj != nil {
			out := &ProjectSummary{
				UID:         uid,
				Title:       proj.text("ProjectDescr", "Title"),
				Description: proj.text("ProjectDescr", "Description"),
			}
			if archive := proj.find("ProjectID", "ArchiveID"); archive != nil {
				out.Accession = strings.ToUpper(archive.attr("accession"))
			}
			out.DataType = proj.text("ProjectType", "ProjectTypeSubmission", "IntendedDataTypeSet", "DataType")
			if out.DataType == "" {
				if data := proj.find("ProjectType", "ProjectTypeSubmission", "Objectives", "Data"); data != nil {
					out.DataType = data.attr("data_type")
				}
			}
			if sub := ds.child("Submission"); sub != nil {
				out.SubmissionDate = sub.attr("submitted")
				out.LastUpdate = sub.attr("last_update")
				out.CenterName = sub.text("Description", "Organization", "Name")
			}
			return out, nil
		}

		// Flat DocumentSummary with Project_* children.
		if ds.child("Project_Acc") != nil {
			out := &ProjectSummary{
				UID:            uid,
				Accession:      strings.ToUpper(ds.text("Project_Acc")),
				Title:          ds.text("Project_Title"),
				Description:    ds.text("Project_Description"),
				Organism:       ds.text("Organism_Name"),
				DataType:       ds.text("Project_Data_Type"),
				SubmissionDate: ds.text("Registration_Date"),
				CenterName:     ds.text("Submitter_Organization"),
			}
			if out.CenterName == "" {
				if orgs := ds.child("Submitter_Organization_List"); orgs != nil {
					for _, s := range orgs.Nodes {
						if v := strings.TrimSpace(s.Text); v != "" {
							out.CenterName = v
							break
						}
					}
				}
			}
			return out, nil
		}
	}

	// Legacy DocSum with Name-attributed Items.
	docsum := root.descendant("DocSum")
	if docsum == nil {
		return &ProjectSummary{UID: uid}, nil
	}
	items := map[string]string{}
	for _, it := range docsum.Nodes {
		if it.XMLName.Local != "Item" {
			continue
		}
		if name := it.attr("Name"); name != "" {
			items[name] = strings.TrimSpace(it.Text)
		}
	}
	pick := func(keys ...string) string {
		for _, k := range keys {
			if v := items[k]; v != "" {
				return v
			}
		}
		return ""
	}
	return &ProjectSummary{
		UID:            uid,
		Accession:      strings.ToUpper(pick("Project_Acc", "Accession")),
		Title:          pick("Project_Title", "Title"),
		Description:    pick("Project_Description", "Description"),
		Organism:       pick("Organism_Name", "Organism"),
		DataType:       pick("Project_Data_Type", "DataType"),
		SubmissionDate: pick("Submission_Date", "CreateDate"),
		LastUpdate:     pick("Last_Update", "UpdateDate"),
		CenterName:     pick("Center_Name", "Center", "Submitter"),
	}, nil
}
