package protocol

// Intent is an outbound envelope serialized to one text frame. Every intent
// carries its own "type" discriminator in its JSON tags.
type Intent interface {
	IntentType() string
}

type MessageIntent struct {
	Type string `json:"type"`
	Msg  string `json:"msg"`
	Lang string `json:"lang"`
}

// NewMessage builds a plain chat message in the given language.
func NewMessage(msg, lang string) MessageIntent {
	return MessageIntent{Type: "msg", Msg: msg, Lang: lang}
}

func (MessageIntent) IntentType() string { return "msg" }

type EmoteIntent struct {
	Type string `json:"type"`
	Msg  string `json:"msg"`
}

func NewEmote(msg string) EmoteIntent {
	return EmoteIntent{Type: "me", Msg: msg}
}

func (EmoteIntent) IntentType() string { return "me" }

// AttackIntent targets a persona by name; Order disambiguates between several
// personas sharing the same name.
type AttackIntent struct {
	Type   string `json:"type"`
	Target string `json:"target"`
	Order  int    `json:"order"`
}

func NewAttack(target string, order int) AttackIntent {
	return AttackIntent{Type: "attack", Target: target, Order: order}
}

func (AttackIntent) IntentType() string { return "attack" }

type GiveIntent struct {
	Type     string `json:"type"`
	ObjectID int    `json:"object_id"`
	Target   string `json:"target"`
	Order    int    `json:"order"`
}

func NewGive(objectID int, target string, order int) GiveIntent {
	return GiveIntent{Type: "give", ObjectID: objectID, Target: target, Order: order}
}

func (GiveIntent) IntentType() string { return "give" }

type UseIntent struct {
	Type     string   `json:"type"`
	ObjectID int      `json:"object_id"`
	Params   []string `json:"params"`
}

func NewUse(objectID int, params []string) UseIntent {
	if params == nil {
		params = []string{}
	}
	return UseIntent{Type: "use", ObjectID: objectID, Params: params}
}

func (UseIntent) IntentType() string { return "use" }

type TakeIntent struct {
	Type     string `json:"type"`
	ObjectID int    `json:"object_id"`
}

func NewTake(objectID int) TakeIntent {
	return TakeIntent{Type: "take", ObjectID: objectID}
}

func (TakeIntent) IntentType() string { return "take" }

type TrashIntent struct {
	Type     string `json:"type"`
	ObjectID int    `json:"object_id"`
}

func NewTrash(objectID int) TrashIntent {
	return TrashIntent{Type: "trash", ObjectID: objectID}
}

func (TrashIntent) IntentType() string { return "trash" }

// InventoryIntent requests the personal item list.
type InventoryIntent struct {
	Type string `json:"type"`
}

func NewInventory() InventoryIntent {
	return InventoryIntent{Type: "inventory"}
}

func (InventoryIntent) IntentType() string { return "inventory" }

// ChannelInventoryIntent requests the room-shared "bank" item list.
type ChannelInventoryIntent struct {
	Type string `json:"type"`
}

func NewChannelInventory() ChannelInventoryIntent {
	return ChannelInventoryIntent{Type: "channel_inventory"}
}

func (ChannelInventoryIntent) IntentType() string { return "channel_inventory" }

// ModIntent is the moderation escape hatch. Its wire form has no "type" key.
type ModIntent struct {
	Mod    string   `json:"mod"`
	Params []string `json:"params"`
}

func NewMod(name string, params []string) ModIntent {
	if params == nil {
		params = []string{}
	}
	return ModIntent{Mod: name, Params: params}
}

func (ModIntent) IntentType() string { return "mod" }

// MoveIntent repositions the sender's avatar (drag-enabled rooms only).
type MoveIntent struct {
	Type string  `json:"type"`
	ID   string  `json:"id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

func NewMove(id string, x, y float64) MoveIntent {
	return MoveIntent{Type: "move", ID: id, X: x, Y: y}
}

func (MoveIntent) IntentType() string { return "move" }
