package main

import (
	"encoding/json"
	"io"

	"github.com/google/uuid"
)

// decodePayload parses a request body into a generic map. Numbers stay as
// json.Number so integer fields can be told apart from floats.
func decodePayload(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var p map[string]any
	if err := dec.Decode(&p); err != nil {
		return nil, errMalformedPayload()
	}
	return p, nil
}

// intField reads an integer property. Returns ok=false when the field is
// absent and not required.
func intField(p map[string]any, name string, required bool) (int64, bool, error) {
	v, present := p[name]
	if !present {
		if required {
			return 0, false, errInvalidValue(name, nil)
		}
		return 0, false, nil
	}
	n, isNum := v.(json.Number)
	if !isNum {
		return 0, false, errInvalidValue(name, v)
	}
	i, err := n.Int64()
	if err != nil {
		return 0, false, errInvalidValue(name, v)
	}
	return i, true, nil
}

func stringField(p map[string]any, name string, required bool) (string, bool, error) {
	v, present := p[name]
	if !present {
		if required {
			return "", false, errInvalidValue(name, nil)
		}
		return "", false, nil
	}
	s, isStr := v.(string)
	if !isStr {
		return "", false, errInvalidValue(name, v)
	}
	return s, true, nil
}

// isUUID accepts only the canonical 36-character form.
func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// decodeAuthor validates an Author payload. The key argument overrides the
// body ID on updates; pass keyFromBody for creates.
func decodeAuthor(p map[string]any, key int64, keyFromBody bool) (*Author, error) {
	id, _, err := intField(p, "ID", keyFromBody)
	if err != nil {
		return nil, err
	}
	if !keyFromBody {
		id = key
	}
	name, _, err := stringField(p, "name", true)
	if err != nil {
		return nil, err
	}
	return &Author{ID: id, Name: name}, nil
}

func decodeBook(p map[string]any, key int64, keyFromBody bool) (*Book, error) {
	id, _, err := intField(p, "ID", keyFromBody)
	if err != nil {
		return nil, err
	}
	if !keyFromBody {
		id = key
	}
	title, _, err := stringField(p, "title", false)
	if err != nil {
		return nil, err
	}
	authorID, _, err := intField(p, "author_ID", false)
	if err != nil {
		return nil, err
	}
	stock, _, err := intField(p, "stock", false)
	if err != nil {
		return nil, err
	}
	if stock < 0 {
		return nil, errInvalidValue("stock", stock)
	}
	return &Book{ID: id, Title: title, AuthorID: authorID, Stock: stock}, nil
}

// decodeOrder validates an Order payload. On create the key comes from the
// body when present and is generated otherwise; malformed UUIDs in the body
// are an invalid value, regardless of the other fields.
func decodeOrder(p map[string]any, key string, keyFromBody bool) (*Order, error) {
	id, present, err := stringField(p, "ID", false)
	if err != nil {
		return nil, err
	}
	if present && !isUUID(id) {
		return nil, errInvalidValue("ID", id)
	}
	if !keyFromBody {
		id = key
	} else if !present {
		id = uuid.NewString()
	}

	bookID, _, err := intField(p, "book_ID", false)
	if err != nil {
		return nil, err
	}
	amount, _, err := intField(p, "amount", false)
	if err != nil {
		return nil, err
	}
	if amount < 1 {
		return nil, errAmountTooSmall()
	}
	return &Order{ID: id, BookID: bookID, Amount: amount}, nil
}
