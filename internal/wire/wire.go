// Package wire encodes and decodes the REST payloads of the marketplace
// backend and the values persisted in the device store.
//
// The backend wraps successful payloads as {"success":true,"data":{...}} and
// errors as {"success":false,"message":"..."}. Decoders accept both the
// enveloped and the bare form. Identifiers arrive as "_id" or "id".
package wire

import (
	"bytes"
	"slices"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace-client/internal/domain/auth"
	"github.com/xenking/marketplace-client/internal/domain/cart"
	"github.com/xenking/marketplace-client/internal/domain/product"
)

// Unwrap returns the payload of an enveloped response body, or the body
// itself when it carries no "data" member.
func Unwrap(body []byte) ([]byte, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return body, nil
	}

	var data jx.Raw
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "data" {
			return d.Skip()
		}
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		data = slices.Clone(raw)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}
	if data == nil || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return body, nil
	}
	return data, nil
}

// ErrorMessage extracts "message" (or "error") from an error response body.
// It returns an empty string when the body is not a JSON object.
func ErrorMessage(body []byte) string {
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return ""
	}
	var msg string
	_ = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "message", "error":
			if d.Next() != jx.String {
				return d.Skip()
			}
			s, err := d.Str()
			if err != nil {
				return err
			}
			if msg == "" {
				msg = s
			}
			return nil
		default:
			return d.Skip()
		}
	})
	return msg
}

// EncodeProduct writes p as a JSON object.
func EncodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("_id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	e.Raw([]byte(p.Price.String()))
	e.FieldStart("description")
	e.Str(p.Description)
	if p.Image != "" {
		e.FieldStart("image")
		e.Str(p.Image)
	}
	e.FieldStart("stock")
	e.Int(p.Stock)
	if p.Category != nil {
		e.FieldStart("category")
		e.ObjStart()
		e.FieldStart("_id")
		e.Str(p.Category.ID)
		e.FieldStart("name")
		e.Str(p.Category.Name)
		e.ObjEnd()
	}
	e.ObjEnd()
}

// DecodeProduct reads a product object.
func DecodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "_id", "id":
			p.ID, err = decodeID(d)
		case "name":
			p.Name, err = decodeOptStr(d)
		case "price":
			p.Price, err = decodeDecimal(d)
		case "description":
			p.Description, err = decodeOptStr(d)
		case "image":
			p.Image, err = decodeOptStr(d)
		case "stock":
			p.Stock, err = decodeOptInt(d)
		case "category":
			p.Category, err = decodeCategory(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return product.Product{}, errors.Wrap(err, "decode product")
	}
	return p, nil
}

// DecodeProductList reads {"products":[...]} or a bare array of products.
func DecodeProductList(payload []byte) ([]product.Product, error) {
	d := jx.DecodeBytes(payload)
	products := []product.Product{}
	readArr := func(d *jx.Decoder) error {
		return d.Arr(func(d *jx.Decoder) error {
			p, err := DecodeProduct(d)
			if err != nil {
				return err
			}
			products = append(products, p)
			return nil
		})
	}

	var err error
	switch tt := d.Next(); tt {
	case jx.Array:
		err = readArr(d)
	case jx.Object:
		err = d.Obj(func(d *jx.Decoder, key string) error {
			if key != "products" {
				return d.Skip()
			}
			return readArr(d)
		})
	default:
		err = errors.Errorf("unexpected %s", tt)
	}
	if err != nil {
		return nil, errors.Wrap(err, "decode product list")
	}
	return products, nil
}

// DecodeProductPayload reads {"product":{...}} or a bare product object.
func DecodeProductPayload(payload []byte) (product.Product, error) {
	var (
		p     product.Product
		found bool
	)
	err := jx.DecodeBytes(payload).Obj(func(d *jx.Decoder, key string) error {
		if key != "product" {
			return d.Skip()
		}
		found = true
		v, err := DecodeProduct(d)
		if err != nil {
			return err
		}
		p = v
		return nil
	})
	if err != nil {
		return product.Product{}, errors.Wrap(err, "decode product payload")
	}
	if found {
		return p, nil
	}
	return DecodeProduct(jx.DecodeBytes(payload))
}

// EncodeLines writes cart lines as [{"product":{...},"quantity":n},...].
func EncodeLines(e *jx.Encoder, lines []cart.Line) {
	e.ArrStart()
	for _, l := range lines {
		e.ObjStart()
		e.FieldStart("product")
		EncodeProduct(e, l.Product)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
}

// MarshalLines returns the JSON form of lines, as persisted for guest carts.
func MarshalLines(lines []cart.Line) []byte {
	var e jx.Encoder
	EncodeLines(&e, lines)
	return e.Bytes()
}

// DecodeLines reads an array of cart lines. Lines whose product is a bare id
// string keep only that id.
func DecodeLines(d *jx.Decoder) ([]cart.Line, error) {
	lines := []cart.Line{}
	err := d.Arr(func(d *jx.Decoder) error {
		var l cart.Line
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "product":
				if d.Next() == jx.String {
					l.Product.ID, err = d.Str()
					return err
				}
				l.Product, err = DecodeProduct(d)
			case "productId":
				// Superseded by a populated product when both are present.
				var id string
				id, err = decodeID(d)
				if l.Product.ID == "" {
					l.Product.ID = id
				}
			case "quantity":
				l.Quantity, err = d.Int()
			default:
				err = d.Skip()
			}
			if err != nil {
				return errors.Wrap(err, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		lines = append(lines, l)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode lines")
	}
	return lines, nil
}

// UnmarshalLines parses persisted guest cart lines.
func UnmarshalLines(data []byte) ([]cart.Line, error) {
	return DecodeLines(jx.DecodeBytes(data))
}

// DecodeCartPayload reads {"items":[...]} or a bare array of lines.
func DecodeCartPayload(payload []byte) ([]cart.Line, error) {
	d := jx.DecodeBytes(payload)
	switch tt := d.Next(); tt {
	case jx.Array:
		return DecodeLines(d)
	case jx.Object:
		lines := []cart.Line{}
		err := d.Obj(func(d *jx.Decoder, key string) error {
			if key != "items" {
				return d.Skip()
			}
			if d.Next() == jx.Null {
				return d.Null()
			}
			var err error
			lines, err = DecodeLines(d)
			return err
		})
		if err != nil {
			return nil, errors.Wrap(err, "decode cart")
		}
		return lines, nil
	default:
		return nil, errors.Errorf("decode cart: unexpected %s", tt)
	}
}

// EncodeUser writes u as a JSON object.
func EncodeUser(e *jx.Encoder, u auth.User) {
	e.ObjStart()
	e.FieldStart("_id")
	e.Str(u.ID)
	e.FieldStart("email")
	e.Str(u.Email)
	if u.Name != "" {
		e.FieldStart("name")
		e.Str(u.Name)
	}
	e.ObjEnd()
}

// MarshalUser returns the JSON form of u, as persisted under the user key.
func MarshalUser(u auth.User) []byte {
	var e jx.Encoder
	EncodeUser(&e, u)
	return e.Bytes()
}

// DecodeUser reads a user object.
func DecodeUser(d *jx.Decoder) (auth.User, error) {
	var u auth.User
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "_id", "id":
			u.ID, err = decodeID(d)
		case "email":
			u.Email, err = decodeOptStr(d)
		case "name":
			u.Name, err = decodeOptStr(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return auth.User{}, errors.Wrap(err, "decode user")
	}
	return u, nil
}

// UnmarshalUser parses a persisted user.
func UnmarshalUser(data []byte) (auth.User, error) {
	return DecodeUser(jx.DecodeBytes(data))
}

// DecodeSession reads the {"token":"...","user":{...}} login payload.
func DecodeSession(payload []byte) (auth.Session, error) {
	var s auth.Session
	err := jx.DecodeBytes(payload).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "token":
			s.Token, err = d.Str()
		case "user":
			s.User, err = DecodeUser(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return auth.Session{}, errors.Wrap(err, "decode session")
	}
	if s.Token == "" {
		return auth.Session{}, errors.New("decode session: missing token")
	}
	return s, nil
}

// EncodeSession writes the login payload form of s.
func EncodeSession(e *jx.Encoder, s auth.Session) {
	e.ObjStart()
	e.FieldStart("token")
	e.Str(s.Token)
	e.FieldStart("user")
	EncodeUser(e, s.User)
	e.ObjEnd()
}

// Credentials is the login request body.
func Credentials(email, password string) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("email")
	e.Str(email)
	e.FieldStart("password")
	e.Str(password)
	e.ObjEnd()
	return e.Bytes()
}

// Registration is the register request body.
func Registration(name, email, password string) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("name")
	e.Str(name)
	e.FieldStart("email")
	e.Str(email)
	e.FieldStart("password")
	e.Str(password)
	e.ObjEnd()
	return e.Bytes()
}

// DecodeRegistration reads a login or register request body. Login bodies
// leave name empty.
func DecodeRegistration(body []byte) (name, email, password string, err error) {
	err = jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			name, err = decodeOptStr(d)
		case "email":
			email, err = decodeOptStr(d)
		case "password":
			password, err = decodeOptStr(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return "", "", "", errors.Wrap(err, "decode credentials")
	}
	return name, email, password, nil
}

// CartItem is the body of add and update cart requests.
func CartItem(productID string, quantity int) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("productId")
	e.Str(productID)
	e.FieldStart("quantity")
	e.Int(quantity)
	e.ObjEnd()
	return e.Bytes()
}

// DecodeCartItem reads a {"productId":"...","quantity":n} request body.
func DecodeCartItem(body []byte) (productID string, quantity int, err error) {
	err = jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			productID, err = decodeID(d)
		case "quantity":
			quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return "", 0, errors.Wrap(err, "decode cart item")
	}
	return productID, quantity, nil
}

func decodeID(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return string(n), nil
	case jx.Null:
		return "", d.Null()
	default:
		return d.Str()
	}
}

func decodeOptStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodeOptInt(d *jx.Decoder) (int, error) {
	switch d.Next() {
	case jx.Null:
		return 0, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		return strconv.Atoi(s)
	default:
		return d.Int()
	}
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Null:
		return decimal.Zero, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	}
}

func decodeCategory(d *jx.Decoder) (*product.Category, error) {
	switch d.Next() {
	case jx.Null:
		return nil, d.Null()
	case jx.String:
		id, err := d.Str()
		if err != nil {
			return nil, err
		}
		return &product.Category{ID: id}, nil
	}

	var c product.Category
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "_id", "id":
			c.ID, err = decodeID(d)
		case "name":
			c.Name, err = decodeOptStr(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}
