package service

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// Params — параметры запроса до подписи. nil-значения выкидываются.
type Params map[string]any

// payloadJSON: ключи отсортированы, HTML не экранируется.
var payloadJSON = sonic.Config{SortMapKeys: true, EscapeHTML: false}.Froze()

var signArgs = func() abi.Arguments {
	str, _ := abi.NewType("string", "", nil)
	addr, _ := abi.NewType("address", "", nil)
	u256, _ := abi.NewType("uint256", "", nil)
	return abi.Arguments{{Type: str}, {Type: addr}, {Type: addr}, {Type: u256}}
}()

// Signer подписывает запросы ключом API-кошелька.
type Signer struct {
	user     string
	signer   string
	userAddr common.Address
	signAddr common.Address
	key      *ecdsa.PrivateKey
}

func NewSigner(user, signer, privateKeyHex string) (*Signer, error) {
	if !common.IsHexAddress(user) {
		return nil, fmt.Errorf("user %q is not a hex address", user)
	}
	if !common.IsHexAddress(signer) {
		return nil, fmt.Errorf("signer %q is not a hex address", signer)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	return &Signer{
		user:     user,
		signer:   signer,
		userAddr: common.HexToAddress(user),
		signAddr: common.HexToAddress(signer),
		key:      key,
	}, nil
}

func (s *Signer) User() string   { return s.user }
func (s *Signer) Signer() string { return s.signer }

// Digest — keccak256(abi.encode(payload, user, signer, nonce)).
func (s *Signer) Digest(payload string, nonce int64) ([]byte, error) {
	packed, err := signArgs.Pack(payload, s.userAddr, s.signAddr, big.NewInt(nonce))
	if err != nil {
		return nil, fmt.Errorf("abi pack: %w", err)
	}
	return crypto.Keccak256(packed), nil
}

// Sign возвращает 0x-hex подпись personal_sign над 32 байтами Digest (v = 27/28).
func (s *Signer) Sign(payload string, nonce int64) (string, error) {
	digest, err := s.Digest(payload, nonce)
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(accounts.TextHash(digest), s.key)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// SigningPayload превращает параметры в строку, которую подписывает Signer:
// все значения приводятся к строкам, затем компактный JSON с сортировкой ключей.
func SigningPayload(params Params) (string, error) {
	flat, err := stringifyMap(params)
	if err != nil {
		return "", err
	}
	raw, err := payloadJSON.Marshal(flat)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	out := asciiEscape(string(raw))
	out = strings.ReplaceAll(out, " ", "")
	out = strings.ReplaceAll(out, "'", `\"`)
	return out, nil
}

func stringifyMap(m map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		s, err := stringify(v)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", k, err)
		}
		out[k] = s
	}
	return out, nil
}

func stringify(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case decimal.Decimal:
		return t.String(), nil
	case map[string]any:
		inner, err := stringifyMap(t)
		if err != nil {
			return "", err
		}
		return marshalString(inner)
	case []string:
		return marshalString(t)
	case []any:
		items := make([]string, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				inner, err := stringifyMap(m)
				if err != nil {
					return "", err
				}
				s, err := marshalString(inner)
				if err != nil {
					return "", err
				}
				items = append(items, s)
				continue
			}
			s, err := stringify(item)
			if err != nil {
				return "", err
			}
			items = append(items, s)
		}
		return marshalString(items)
	case fmt.Stringer:
		return t.String(), nil
	}
	return fmt.Sprint(v), nil
}

// marshalString — вложенное значение экранируется так же, как весь payload,
// до того как попасть строкой во внешний JSON.
func marshalString(v any) (string, error) {
	raw, err := payloadJSON.Marshal(v)
	if err != nil {
		return "", err
	}
	return asciiEscape(string(raw)), nil
}

// asciiEscape заменяет DEL и не-ASCII символы на \uXXXX (суррогатные пары для > U+FFFF).
func asciiEscape(s string) string {
	plain := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x7f {
			plain = false
			break
		}
	}
	if plain {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if r < 0x7f {
			b.WriteRune(r)
			continue
		}
		if r > 0xFFFF {
			r1, r2 := utf16.EncodeRune(r)
			fmt.Fprintf(&b, `\u%04x\u%04x`, r1, r2)
			continue
		}
		fmt.Fprintf(&b, `\u%04x`, r)
	}
	return b.String()
}
