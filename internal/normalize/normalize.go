package normalize

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/meetpipe/meetpipe/internal/task"
)

// DocumentFetcher resolves an auxiliary document pointer into its JSON
// object. provider.Adapter satisfies this.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, url string) (map[string]any, error)
}

// Normalizer reconciles the providers' incompatible result schemas into
// the canonical transcript/summary model. Extraction is field-by-field
// with ordered fallback chains; a malformed payload degrades to whatever
// subset of fields could be read, and an empty extraction is valid.
type Normalizer struct {
	fetch DocumentFetcher
	log   zerolog.Logger
}

// New creates a normalizer that resolves auxiliary documents via fetch.
func New(fetch DocumentFetcher, log zerolog.Logger) *Normalizer {
	return &Normalizer{fetch: fetch, log: log}
}

// Normalize builds a CanonicalResult from a raw provider payload. The raw
// payload is retained on the result for audit. Normalize never fails:
// unparseable input yields a result carrying only the raw bytes.
func (n *Normalizer) Normalize(ctx context.Context, raw json.RawMessage) *task.CanonicalResult {
	res := &task.CanonicalResult{Raw: raw}

	var root map[string]any
	if err := json.Unmarshal(raw, &root); err != nil {
		n.log.Warn().Err(err).Msg("result payload is not a JSON object")
		return res
	}

	res.Utterances = n.extractTranscript(ctx, root)
	n.extractSummary(ctx, root, res)
	n.extractAssistance(ctx, root, res)
	return res
}

// docURL looks up an auxiliary document pointer, first under the nested
// Result object, then at the root.
func docURL(root map[string]any, keys ...string) string {
	if result := probeMap(root, "Result", "result"); result != nil {
		if u := probeString(result, keys...); u != "" {
			return u
		}
	}
	return probeString(root, keys...)
}

// resolve fetches one auxiliary document, degrading to nil on any failure.
func (n *Normalizer) resolve(ctx context.Context, url, kind string) map[string]any {
	if url == "" || n.fetch == nil {
		return nil
	}
	doc, err := n.fetch.FetchDocument(ctx, url)
	if err != nil {
		n.log.Warn().Err(err).Str("document", kind).Msg("auxiliary document fetch failed")
		return nil
	}
	return doc
}

// extractTranscript tries, in order: an external transcript document, an
// inline paragraph list, an inline sentence list, a flat transcript string.
func (n *Normalizer) extractTranscript(ctx context.Context, root map[string]any) []task.Utterance {
	if doc := n.resolve(ctx, docURL(root, "Transcription", "transcription"), "transcription"); doc != nil {
		body := probeMap(doc, "Transcription", "transcription")
		if body == nil {
			body = doc
		}
		if utts := utterancesFromItems(probeList(body, "Paragraphs", "paragraphs")); utts != nil {
			return utts
		}
		if utts := utterancesFromItems(probeList(body, "Sentences", "sentences")); utts != nil {
			return utts
		}
	}

	if utts := utterancesFromItems(probeList(root, "Paragraphs", "paragraphs")); utts != nil {
		return utts
	}
	if utts := utterancesFromItems(probeList(root, "Sentences", "sentences", "utterances", "Utterances")); utts != nil {
		return utts
	}
	if text := probeString(root, "Text", "text", "Transcript", "transcript"); text != "" {
		return []task.Utterance{{Text: text}}
	}
	return nil
}

// utterancesFromItems converts a paragraph/sentence list. Items whose
// derived text is empty are skipped; an all-empty list counts as a miss so
// the next source in the chain is tried.
func utterancesFromItems(items []any) []task.Utterance {
	if items == nil {
		return nil
	}
	utts := make([]task.Utterance, 0, len(items))
	for _, it := range items {
		m := asMap(it)
		if m == nil {
			continue
		}
		text := itemText(m)
		if text == "" {
			continue
		}
		utts = append(utts, task.Utterance{Speaker: itemSpeaker(m), Text: text})
	}
	if len(utts) == 0 {
		return nil
	}
	return utts
}

// itemSpeaker derives a speaker label: named speaker first, then role,
// then a numeric speaker id rendered as "Speaker {id}".
func itemSpeaker(m map[string]any) string {
	if s := probeString(m, "SpeakerName", "speakerName", "speaker_name"); s != "" {
		return s
	}
	if s := probeString(m, "Speaker", "speaker"); s != "" {
		return s
	}
	if s := probeString(m, "Role", "role"); s != "" {
		return s
	}
	if id := probeID(m, "SpeakerId", "speakerId", "speaker_id", "Speaker", "speaker"); id != "" {
		return "Speaker " + id
	}
	return ""
}

// itemText derives the text of one paragraph/sentence: a direct text field
// first, else the concatenation of its per-word text fields in order.
func itemText(m map[string]any) string {
	if s := probeString(m, "Text", "text", "Content", "content"); s != "" {
		return s
	}
	words := probeList(m, "Words", "words")
	if words == nil {
		return ""
	}
	var b strings.Builder
	for _, w := range words {
		wm := asMap(w)
		if wm == nil {
			continue
		}
		if s, ok := wm["Text"].(string); ok {
			b.WriteString(s)
		} else if s, ok := wm["text"].(string); ok {
			b.WriteString(s)
		}
	}
	return strings.TrimSpace(b.String())
}

// extractSummary fills headline and body. Preference order: the external
// summary document's version-2 nested shape, that document's flat shape,
// then an inline summary object on the main result.
func (n *Normalizer) extractSummary(ctx context.Context, root map[string]any, res *task.CanonicalResult) {
	if doc := n.resolve(ctx, docURL(root, "Summarization", "summarization", "Summary", "summary"), "summarization"); doc != nil {
		if v2 := probeMap(doc, "Summarization", "summarization"); v2 != nil {
			n.summaryFromV2(v2, res)
			if res.SummaryHeadline != "" || res.SummaryBody != "" {
				return
			}
		}
		if flatSummary(doc, res) {
			return
		}
	}

	if inline := probeMap(root, "Summarization", "summarization", "Summary", "summary"); inline != nil {
		flatSummary(inline, res)
	}
}

// flatSummary reads the flat headline+body shape. Reports whether anything
// was extracted.
func flatSummary(m map[string]any, res *task.CanonicalResult) bool {
	headline := probeString(m, "Headline", "headline", "Title", "title")
	body := probeString(m, "Summary", "summary", "Abstract", "abstract", "Text", "text")
	if headline == "" && body == "" {
		return false
	}
	if res.SummaryHeadline == "" {
		res.SummaryHeadline = headline
	}
	if res.SummaryBody == "" {
		res.SummaryBody = body
	}
	return true
}

// summaryFromV2 renders the version-2 nested summary: paragraph summary
// first, then each present sub-section appended under a labeled heading in
// fixed order — conversational turns, Q&A pairs, mind-map node titles.
func (n *Normalizer) summaryFromV2(v2 map[string]any, res *task.CanonicalResult) {
	var sections []string

	if body := probeString(v2, "ParagraphSummary", "paragraphSummary", "Summary", "summary"); body != "" {
		sections = append(sections, body)
	}
	if res.SummaryHeadline == "" {
		res.SummaryHeadline = probeString(v2, "ParagraphTitle", "paragraphTitle", "Headline", "headline", "Title", "title")
	}

	if turns := conversationalTurns(probeList(v2, "ConversationalSummary", "conversationalSummary")); turns != "" {
		sections = append(sections, "## Conversational Summary\n"+turns)
	}
	if qa := questionAnswers(probeList(v2, "QuestionsAnsweringSummary", "questionsAnsweringSummary", "QuestionAnswerSummary")); qa != "" {
		sections = append(sections, "## Q&A\n"+qa)
	}
	if mm := mindMapTitles(v2); mm != "" {
		sections = append(sections, "## Mind Map\n"+mm)
	}

	if len(sections) > 0 && res.SummaryBody == "" {
		res.SummaryBody = strings.Join(sections, "\n\n")
	}
}

// conversationalTurns renders per-speaker summary turns as
// "{speaker}: {summary}" lines.
func conversationalTurns(items []any) string {
	var lines []string
	for _, it := range items {
		m := asMap(it)
		if m == nil {
			continue
		}
		summary := probeString(m, "Summary", "summary", "Text", "text")
		if summary == "" {
			continue
		}
		speaker := itemSpeaker(m)
		if speaker != "" {
			lines = append(lines, speaker+": "+summary)
		} else {
			lines = append(lines, summary)
		}
	}
	return strings.Join(lines, "\n")
}

// questionAnswers renders Q&A pairs as "Q: ...\nA: ..." blocks.
func questionAnswers(items []any) string {
	var blocks []string
	for _, it := range items {
		m := asMap(it)
		if m == nil {
			continue
		}
		q := probeString(m, "Question", "question", "Q", "q")
		a := probeString(m, "Answer", "answer", "A", "a")
		if q == "" && a == "" {
			continue
		}
		blocks = append(blocks, "Q: "+q+"\nA: "+a)
	}
	return strings.Join(blocks, "\n")
}

// mindMapTitles joins the mind-map node titles with commas. Nodes may sit
// directly in a list or one level down under a wrapper object.
func mindMapTitles(v2 map[string]any) string {
	nodes := probeList(v2, "MindMapSummary", "mindMapSummary", "MindMap", "mindMap")
	if nodes == nil {
		if wrapper := probeMap(v2, "MindMapSummary", "mindMapSummary", "MindMap", "mindMap"); wrapper != nil {
			nodes = probeList(wrapper, "MindMapList", "mindMapList", "Nodes", "nodes")
		}
	}
	var titles []string
	for _, nd := range nodes {
		m := asMap(nd)
		if m == nil {
			continue
		}
		if t := probeString(m, "Title", "title", "Topic", "topic"); t != "" {
			titles = append(titles, t)
		}
	}
	return strings.Join(titles, ", ")
}

// extractAssistance fills key points and action items. The dedicated
// assistance document wins over inline lists on the summary object; a
// field already populated is never overwritten by a lower-priority source.
func (n *Normalizer) extractAssistance(ctx context.Context, root map[string]any, res *task.CanonicalResult) {
	if doc := n.resolve(ctx, docURL(root, "MeetingAssistance", "meetingAssistance", "Assistance", "assistance"), "assistance"); doc != nil {
		body := probeMap(doc, "MeetingAssistance", "meetingAssistance", "Assistance", "assistance")
		if body == nil {
			body = doc
		}
		var points []string
		if kw := probeStrings(body, "Keywords", "keywords"); kw != nil {
			points = append(points, strings.Join(kw, ", "))
		}
		for _, it := range probeList(body, "KeySentences", "keySentences", "key_sentences") {
			m := asMap(it)
			if m == nil {
				continue
			}
			if s := probeString(m, "Text", "text", "Sentence", "sentence"); s != "" {
				points = append(points, s)
			}
		}
		if len(points) > 0 && res.KeyPoints == nil {
			res.KeyPoints = points
		}
	}

	inline := probeMap(root, "Summarization", "summarization", "Summary", "summary")
	if inline == nil {
		inline = root
	}
	if res.KeyPoints == nil {
		res.KeyPoints = probeStrings(inline, "KeyPoints", "keyPoints", "key_points")
	}
	if res.ActionItems == nil {
		res.ActionItems = probeStrings(inline, "ActionItems", "actionItems", "action_items", "Actions", "actions")
	}
}
