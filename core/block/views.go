package block

// Alignment of an image within the document flow.
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

// TextWrap tells on which side of an image the text flows.
type TextWrap string

const (
	WrapLeft  TextWrap = "left"
	WrapRight TextWrap = "right"
	WrapNone  TextWrap = "none"
)

type (
	TextView struct {
		Text         string
		FontSize     int
		IsBold       bool
		IsItalic     bool
		IsUnderlined bool
	}

	ImageView struct {
		Src       string
		Alt       string
		Width     int
		Height    int
		Alignment Alignment
		TextWrap  TextWrap
	}

	VideoView struct {
		Src     string
		Caption string
		Width   int
		Height  int
	}

	LinkView struct {
		Href    string
		Caption string
	}

	QuoteView struct {
		Text   string
		Author string
	}

	CodeView struct {
		Source   string
		Language string
	}

	AssetView struct {
		FileName string
		FileType string
	}
)

// Text returns the text view of text, title and subtitle blocks.
func (b Block) Text() (TextView, bool) {
	switch b.Type {
	case TypeText, TypeTitle, TypeSubtitle:
	default:
		return TextView{}, false
	}
	return TextView{
		Text:         b.Content,
		FontSize:     b.Metadata.Int(KeyFontSize),
		IsBold:       b.Metadata.Bool(KeyIsBold),
		IsItalic:     b.Metadata.Bool(KeyIsItalic),
		IsUnderlined: b.Metadata.Bool(KeyIsUnderlined),
	}, true
}

func (b Block) Image() (ImageView, bool) {
	if b.Type != TypeImage {
		return ImageView{}, false
	}
	v := ImageView{
		Src:       b.Content,
		Alt:       b.Metadata.String(KeyAlt),
		Width:     b.Metadata.Int(KeyWidth),
		Height:    b.Metadata.Int(KeyHeight),
		Alignment: AlignLeft,
		TextWrap:  WrapNone,
	}
	switch a := Alignment(b.Metadata.String(KeyAlignment)); a {
	case AlignLeft, AlignCenter, AlignRight:
		v.Alignment = a
	}
	switch w := TextWrap(b.Metadata.String(KeyTextWrap)); w {
	case WrapLeft, WrapRight, WrapNone:
		v.TextWrap = w
	}
	return v, true
}

func (b Block) Video() (VideoView, bool) {
	if b.Type != TypeVideo {
		return VideoView{}, false
	}
	return VideoView{
		Src:     b.Content,
		Caption: b.Metadata.String(KeyCaption),
		Width:   b.Metadata.Int(KeyWidth),
		Height:  b.Metadata.Int(KeyHeight),
	}, true
}

// Link returns the link view of link and url blocks.
func (b Block) Link() (LinkView, bool) {
	if b.Type != TypeLink && b.Type != TypeURL {
		return LinkView{}, false
	}
	return LinkView{Href: b.Content, Caption: b.Metadata.String(KeyCaption)}, true
}

func (b Block) Quote() (QuoteView, bool) {
	if b.Type != TypeQuote {
		return QuoteView{}, false
	}
	return QuoteView{Text: b.Content, Author: b.Metadata.String(KeyAuthor)}, true
}

func (b Block) Code() (CodeView, bool) {
	if b.Type != TypeCode {
		return CodeView{}, false
	}
	return CodeView{Source: b.Content, Language: b.Metadata.String(KeyLanguage)}, true
}

// Asset returns the uploaded file info of media blocks, ok is false when the block holds no uploaded file.
func (b Block) Asset() (AssetView, bool) {
	if !b.Type.IsMedia() {
		return AssetView{}, false
	}
	v := AssetView{FileName: b.Metadata.String(KeyFileName), FileType: b.Metadata.String(KeyFileType)}
	return v, v.FileName != "" || v.FileType != ""
}
