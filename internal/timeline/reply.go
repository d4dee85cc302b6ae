package timeline

// PlaceholderPreview is rendered when a reply target is not in the loaded
// window. Older pages may simply not be loaded yet, so this is not an error.
const PlaceholderPreview = "attachment"

// ReplyPreview is what the view renders above a replying message.
type ReplyPreview struct {
	AuthorID    string
	Preview     string
	Placeholder bool
}

// ResolveReply looks a reply reference up against the loaded window. The
// lookup is scoped to the reference's channel: client-channel and
// internal-channel native ids are disjoint namespaces and never cross-match.
func (s *Store) ResolveReply(ref ReplyRef) (Message, bool) {
	if !ref.Channel.Valid() || ref.NativeID == "" {
		return Message{}, false
	}
	return s.Get(Key{ID: ref.NativeID, Channel: ref.Channel})
}

// PreviewReply resolves a reference into a renderable preview, falling back
// to the message's own snapshot and then to the generic placeholder. It
// never fails.
func (s *Store) PreviewReply(m Message) (ReplyPreview, bool) {
	if m.ReplyTo == nil {
		return ReplyPreview{}, false
	}
	if target, ok := s.ResolveReply(*m.ReplyTo); ok {
		return ReplyPreview{AuthorID: target.AuthorID, Preview: previewText(target)}, true
	}
	if m.Snapshot != nil {
		return ReplyPreview{AuthorID: m.Snapshot.AuthorID, Preview: m.Snapshot.Preview}, true
	}
	return ReplyPreview{Preview: PlaceholderPreview, Placeholder: true}, true
}

func previewText(m Message) string {
	if m.Content != "" {
		return m.Content
	}
	if m.Attachment != nil && m.Attachment.Name != "" {
		return m.Attachment.Name
	}
	return PlaceholderPreview
}
