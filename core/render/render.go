// Package render projects a block collection to a read-only tree, for the editor preview and the learner-facing view alike.
//
// Projection is pure: the input is never modified and the same input always yields the same tree.
package render

import (
	"html"
	"net/url"
	"strconv"
	"strings"

	"github.com/trezcool/tribunal/core/block"
)

// Kind of a rendered node. Known block types render to the Kind of the same name.
type Kind string

const (
	KindTitle       = Kind(block.TypeTitle)
	KindSubtitle    = Kind(block.TypeSubtitle)
	KindText        = Kind(block.TypeText)
	KindImage       = Kind(block.TypeImage)
	KindVideo       = Kind(block.TypeVideo)
	KindLink        = Kind(block.TypeLink)
	KindURL         = Kind(block.TypeURL)
	KindCode        = Kind(block.TypeCode)
	KindQuote       = Kind(block.TypeQuote)
	KindChecklist   = Kind(block.TypeChecklist)
	KindList        = Kind(block.TypeList)
	KindDivider     = Kind(block.TypeDivider)
	KindCarousel    = Kind(block.TypeCarousel)
	KindUnsupported = Kind("unsupported")
)

type Float string

const (
	FloatLeft  Float = "left"
	FloatRight Float = "right"
	FloatNone  Float = "none"
)

type (
	// Layout hints for media; the consumer performs the actual layout.
	Layout struct {
		Float  Float           `json:"float"`
		Align  block.Alignment `json:"align"`
		Width  int             `json:"width,omitempty"`
		Height int             `json:"height,omitempty"`
	}

	Item struct {
		Text    string `json:"text,omitempty"`
		URL     string `json:"url,omitempty"`
		Checked bool   `json:"checked,omitempty"`
	}

	Node struct {
		Kind    Kind              `json:"kind"`
		BlockID string            `json:"blockId"`
		Text    string            `json:"text,omitempty"`
		HTML    string            `json:"html,omitempty"`
		URL     string            `json:"url,omitempty"`
		Items   []Item            `json:"items,omitempty"`
		Attrs   map[string]string `json:"attrs,omitempty"`
		Layout  *Layout           `json:"layout,omitempty"`
	}

	Tree struct {
		Nodes []Node `json:"nodes"`
	}

	// Document is what learner-facing consumers display.
	Document struct {
		Title           string `json:"title"`
		TargetHierarchy int    `json:"targetHierarchy"`
		Tree
	}
)

// Attribute names.
const (
	AttrType     = "type" // original type of an unsupported block
	AttrAlt      = "alt"
	AttrCaption  = "caption"
	AttrAuthor   = "author"
	AttrLanguage = "language"
	AttrProvider = "provider"
	AttrStyle    = "style"
	AttrFontSize = "fontSize"
	AttrFileName = "fileName"
	AttrFileType = "fileType"
)

// Project maps blocks, in order, to render nodes.
func Project(blocks []block.Block) Tree {
	sorted := block.Clone(blocks)
	block.Sort(sorted)

	nodes := make([]Node, 0, len(sorted))
	for _, b := range sorted {
		nodes = append(nodes, project(b))
	}
	return Tree{Nodes: nodes}
}

// ProjectDocument projects an approved proposal's content for a learner tier.
// The heading is the title when given, else the content of the first title block.
func ProjectDocument(title string, hierarchy int, blocks []block.Block) Document {
	tree := Project(blocks)
	if strings.TrimSpace(title) == "" {
		for _, n := range tree.Nodes {
			if n.Kind == KindTitle && n.Text != "" {
				title = n.Text
				break
			}
		}
	}
	return Document{Title: strings.TrimSpace(title), TargetHierarchy: hierarchy, Tree: tree}
}

func project(b block.Block) Node {
	n := Node{Kind: Kind(b.Type), BlockID: b.ID}
	content := visible(b)

	switch b.Type {
	case block.TypeTitle, block.TypeSubtitle:
		n.Text = strings.TrimSpace(content)
		n.HTML = html.EscapeString(n.Text)

	case block.TypeText:
		v, _ := b.Text()
		n.Text = content
		n.HTML = markdown(content)
		n.Attrs = textStyle(v)

	case block.TypeQuote:
		v, _ := b.Quote()
		n.Text = content
		n.HTML = markdown(content)
		n.Attrs = attrs(AttrAuthor, v.Author)

	case block.TypeCode:
		v, _ := b.Code()
		n.Text = content
		n.HTML = "<pre><code>" + html.EscapeString(content) + "</code></pre>"
		n.Attrs = attrs(AttrLanguage, v.Language)

	case block.TypeImage:
		v, _ := b.Image()
		n.URL = safeURL(content)
		n.Attrs = attrs(AttrAlt, v.Alt)
		n.Layout = &Layout{Float: floatOf(v), Align: v.Alignment, Width: v.Width, Height: v.Height}
		addAsset(&n, b)

	case block.TypeVideo:
		v, _ := b.Video()
		n.URL = safeURL(content)
		n.Attrs = attrs(AttrCaption, v.Caption, AttrProvider, provider(n.URL))
		if v.Width > 0 || v.Height > 0 {
			n.Layout = &Layout{Float: FloatNone, Align: block.AlignLeft, Width: v.Width, Height: v.Height}
		}
		addAsset(&n, b)

	case block.TypeLink, block.TypeURL:
		v, _ := b.Link()
		n.URL = safeURL(content)
		n.Text = v.Caption
		if n.Text == "" {
			n.Text = n.URL
		}

	case block.TypeChecklist:
		n.Items = checklist(content)

	case block.TypeList:
		n.Items = list(content)

	case block.TypeCarousel:
		for _, line := range lines(content) {
			if u := safeURL(line); u != "" {
				n.Items = append(n.Items, Item{URL: u})
			}
		}

	case block.TypeDivider:

	default:
		n.Kind = KindUnsupported
		n.Text = content
		n.Attrs = attrs(AttrType, string(b.Type))
	}
	return n
}

// visible returns the content as displayed: placeholders and untouched defaults show as nothing.
func visible(b block.Block) string {
	if !b.HasContent() {
		return ""
	}
	return b.Content
}

func floatOf(v block.ImageView) Float {
	switch v.TextWrap {
	case block.WrapLeft:
		return FloatRight // text on the left, image on the right
	case block.WrapRight:
		return FloatLeft
	}
	return FloatNone
}

func textStyle(v block.TextView) map[string]string {
	var style []string
	if v.IsBold {
		style = append(style, "bold")
	}
	if v.IsItalic {
		style = append(style, "italic")
	}
	if v.IsUnderlined {
		style = append(style, "underline")
	}
	size := ""
	if v.FontSize > 0 {
		size = strconv.Itoa(v.FontSize)
	}
	return attrs(AttrStyle, strings.Join(style, " "), AttrFontSize, size)
}

func addAsset(n *Node, b block.Block) {
	if v, ok := b.Asset(); ok {
		if n.Attrs == nil {
			n.Attrs = make(map[string]string, 2)
		}
		if v.FileName != "" {
			n.Attrs[AttrFileName] = v.FileName
		}
		if v.FileType != "" {
			n.Attrs[AttrFileType] = v.FileType
		}
	}
}

// attrs builds a map from key/value pairs, skipping empty values. Returns nil when empty.
func attrs(kv ...string) map[string]string {
	var m map[string]string
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			continue
		}
		if m == nil {
			m = make(map[string]string, len(kv)/2)
		}
		m[kv[i]] = kv[i+1]
	}
	return m
}

func provider(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "data:") {
		return "file"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "file"
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch {
	case host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		return "youtube"
	case host == "vimeo.com" || strings.HasSuffix(host, ".vimeo.com"):
		return "vimeo"
	}
	return "file"
}

func lines(content string) []string {
	var out []string
	for _, l := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

var (
	doneMarkers = []string{"✓", "✔", "☑", "[x]", "[X]"}
	todoMarkers = []string{"☐", "[ ]"}
)

// checklist parses one item per line; a leading check mark means the item is done.
func checklist(content string) []Item {
	var items []Item
	for _, l := range lines(content) {
		item := Item{Text: l}
		if text, ok := cutMarker(l, doneMarkers); ok {
			item = Item{Text: text, Checked: true}
		} else if text, ok = cutMarker(l, todoMarkers); ok {
			item = Item{Text: text}
		}
		if item.Text == "" {
			continue
		}
		items = append(items, item)
	}
	return items
}

func cutMarker(line string, markers []string) (string, bool) {
	for _, m := range markers {
		if rest, ok := strings.CutPrefix(line, m); ok {
			return strings.TrimSpace(rest), true
		}
	}
	return line, false
}

// list parses one item per line, stripping bullets ("-", "*", "•") and numbering ("1.", "2)").
func list(content string) []Item {
	var items []Item
	for _, l := range lines(content) {
		if text := strings.TrimSpace(stripBullet(l)); text != "" {
			items = append(items, Item{Text: text})
		}
	}
	return items
}

func stripBullet(l string) string {
	for _, b := range []string{"- ", "* ", "+ ", "• "} {
		if rest, ok := strings.CutPrefix(l, b); ok {
			return rest
		}
	}
	i := 0
	for i < len(l) && l[i] >= '0' && l[i] <= '9' {
		i++
	}
	if i > 0 && i < len(l) && (l[i] == '.' || l[i] == ')') {
		return l[i+1:]
	}
	return l
}
