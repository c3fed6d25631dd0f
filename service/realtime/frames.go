package realtime

import (
	"encoding/json"

	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/data/store"
	"github.com/pkg/errors"
)

// OpType is a document mutation kind as carried on the bus and in
// update frames.
type OpType string

const (
	OpInsert OpType = "insert"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// ChangeEvent is the cross-process tuple published after every write.
// Receivers re-fetch and re-evaluate; nothing of the written document
// itself travels on the bus.
type ChangeEvent struct {
	Uid           string `json:"uid"`
	DocumentId    string `json:"documentId"`
	Collection    string `json:"collection"`
	OperationType OpType `json:"operationType"`
}

func EncodeChangeEvent(ev ChangeEvent) ([]byte, error) {
	return json.Marshal(ev)
}

func DecodeChangeEvent(raw []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ChangeEvent{}, errors.Wrap(err, "decode change event")
	}
	return ev, nil
}

// ClientFrame is what a client may send: authenticate or ping.
type ClientFrame struct {
	Op    string `json:"op"`
	Token string `json:"token,omitempty"`
}

func ParseClientFrame(raw []byte) (*ClientFrame, error) {
	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, errors.Wrap(err, "parse frame")
	}
	if frame.Op == "" {
		return nil, errors.New("frame missing op")
	}
	return &frame, nil
}

// UpdateResult mirrors the HTTP read-path transform: id split from
// content, so pull and push look identical to the client. Deletes carry
// no content.
type UpdateResult struct {
	OperationType OpType  `json:"operationType"`
	Id            string  `json:"id"`
	Content       store.M `json:"content,omitempty"`
}

type updateFrame struct {
	Msg     string         `json:"msg"`
	Target  string         `json:"target"`
	Results []UpdateResult `json:"results"`
}

type notificationFrame struct {
	Msg     string `json:"msg"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

type simpleFrame struct {
	Msg   string `json:"msg"`
	Error string `json:"error,omitempty"`
}

func BuildUpdateFrame(target string, results []UpdateResult) []byte {
	raw, _ := json.Marshal(updateFrame{Msg: "update", Target: target, Results: results})
	return raw
}

func BuildNotificationFrame(title, message string) []byte {
	raw, _ := json.Marshal(notificationFrame{Msg: "notification", Title: title, Message: message})
	return raw
}

func BuildErrorFrame(msg string) []byte {
	raw, _ := json.Marshal(simpleFrame{Msg: "error", Error: msg})
	return raw
}

func BuildAckFrame(msg string) []byte {
	raw, _ := json.Marshal(simpleFrame{Msg: msg})
	return raw
}
