package registry

// Op is the operation class an event name resolves to.
type Op string

const (
	OpAdd     Op = "add"
	OpUpdate  Op = "update"
	OpRemove  Op = "remove"
	OpReorder Op = "reorder"
	OpDraft   Op = "draft"
	OpVote    Op = "vote"
)

// EntityType declares one synced collection: its id key, required
// payload fields, whether siblings carry a dense order value, and the
// event names mapped to each operation. The table is read-only after
// package init.
type EntityType struct {
	Name           string
	IDKey          string
	RequiredFields []string
	Ordered        bool
	// Streaming marks the type whose add event opens an AI streaming
	// session instead of persisting.
	Streaming bool
	Events    map[Op]string
}

// Route is the resolution of an inbound event name.
type Route struct {
	Type *EntityType
	Op   Op
}

var types = []*EntityType{
	{Name: "goals", IDKey: "id", RequiredFields: []string{"text"}, Ordered: true,
		Events: map[Op]string{OpAdd: "add-goal", OpUpdate: "update-goal", OpRemove: "remove-goal", OpReorder: "reorder-goals", OpVote: "vote-goal"}},
	{Name: "chat", IDKey: "id", RequiredFields: []string{"text"},
		Events: map[Op]string{OpAdd: "add-chat", OpUpdate: "update-chat", OpRemove: "remove-chat", OpDraft: "draft-chat"}},
	{Name: "documents", IDKey: "id", RequiredFields: []string{"title"}, Ordered: true,
		Events: map[Op]string{OpAdd: "add-document", OpUpdate: "rename-document", OpRemove: "delete-document", OpReorder: "reorder-documents"}},
	{Name: "sections", IDKey: "id", RequiredFields: []string{"title"}, Ordered: true,
		Events: map[Op]string{OpAdd: "add-section", OpUpdate: "update-section", OpRemove: "remove-section", OpReorder: "reorder-sections"}},
	{Name: "questions", IDKey: "id", RequiredFields: []string{"text"},
		Events: map[Op]string{OpAdd: "add-question", OpUpdate: "update-question", OpRemove: "remove-question", OpVote: "vote-question"}},
	{Name: "answers", IDKey: "id", RequiredFields: []string{"text", "questionId"},
		Events: map[Op]string{OpAdd: "add-answer", OpUpdate: "update-answer", OpRemove: "remove-answer", OpVote: "vote-answer"}},
	{Name: "agents", IDKey: "id", RequiredFields: []string{"name"},
		Events: map[Op]string{OpAdd: "add-agent", OpUpdate: "update-agent", OpRemove: "remove-agent"}},
	{Name: "clips", IDKey: "id", RequiredFields: []string{"url"},
		Events: map[Op]string{OpAdd: "add-clip", OpUpdate: "update-clip", OpRemove: "remove-clip"}},
	{Name: "bookmarks", IDKey: "id", RequiredFields: []string{"url"},
		Events: map[Op]string{OpAdd: "add-bookmark", OpUpdate: "update-bookmark", OpRemove: "remove-bookmark"}},
	{Name: "artifacts", IDKey: "id", RequiredFields: []string{"kind"},
		Events: map[Op]string{OpAdd: "add-artifact", OpUpdate: "update-artifact", OpRemove: "remove-artifact"}},
	{Name: "transcripts", IDKey: "id", RequiredFields: []string{"text"},
		Events: map[Op]string{OpAdd: "add-transcript", OpUpdate: "update-transcript", OpRemove: "remove-transcript"}},
	{Name: "llm", IDKey: "id", RequiredFields: []string{"prompt"}, Streaming: true,
		Events: map[Op]string{OpAdd: "add-llm", OpUpdate: "update-llm", OpRemove: "remove-llm", OpDraft: "draft-llm"}},
	{Name: "collab", IDKey: "id", RequiredFields: []string{"text"},
		Events: map[Op]string{OpAdd: "add-collab-message", OpUpdate: "update-collab-message", OpRemove: "remove-collab-message", OpDraft: "draft-collab-message"}},
	{Name: "rooms", IDKey: "id", RequiredFields: []string{"roomId", "text"},
		Events: map[Op]string{OpAdd: "add-room-message", OpUpdate: "update-room-message", OpRemove: "remove-room-message"}},
}

// eventRoutes is the precomputed event-name lookup built once at startup
// so dispatch never scans the table per message.
var eventRoutes map[string]Route

var byName map[string]*EntityType

func init() {
	eventRoutes = make(map[string]Route)
	byName = make(map[string]*EntityType, len(types))
	for _, t := range types {
		byName[t.Name] = t
		for op, ev := range t.Events {
			eventRoutes[ev] = Route{Type: t, Op: op}
		}
	}
}

// Resolve returns the (entity type, operation) route for an event name.
// ok is false for unrecognized events.
func Resolve(event string) (Route, bool) {
	r, ok := eventRoutes[event]
	return r, ok
}

// Lookup returns the entity type config by collection name.
func Lookup(name string) (*EntityType, bool) {
	t, ok := byName[name]
	return t, ok
}

// All returns every registered entity type in declaration order.
func All() []*EntityType {
	return types
}

// Names returns the registered collection names in declaration order.
func Names() []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, t.Name)
	}
	return out
}
