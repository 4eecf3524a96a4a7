package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/xela07ax/uav-memtrust/internal/domain"
)

// Manager — keyed message authentication записей памяти. Граница доверия
// проходит ровно здесь: легитимные писатели владеют ключом, все остальные —
// нет. Ключ — конфигурация процесса, в записи он не попадает никогда.
type Manager struct {
	key []byte
}

func NewManager(key []byte) *Manager {
	return &Manager{key: key}
}

// SignData считает HMAC-SHA256 поверх канонической сериализации записи.
// Каноникализация фиксирует порядок ключей и формат значений, поэтому две
// логически одинаковые записи подписываются одинаково — в том числе из
// разных процессов, разделяющих ключ. Существующая _signature из расчета
// исключается.
func (m *Manager) SignData(record map[string]any) string {
	canonical, err := Canonicalize(record)
	if err != nil {
		// Неперевариваемая запись не подписывается; пустая подпись заведомо
		// не пройдет VerifyData.
		return ""
	}
	mac := hmac.New(sha256.New, m.key)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyData пересчитывает код по записи (опять же без _signature) и
// сравнивает с предъявленной подписью. Контракт: только boolean, никаких
// паник и ошибок — mismatch, отсутствующая подпись, кривой вход дают false.
// Сравнение константное по времени (hmac.Equal), длина совпадающего префикса
// наружу не утекает.
func (m *Manager) VerifyData(record map[string]any, signature string) bool {
	if record == nil || signature == "" {
		return false
	}
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	canonical, err := Canonicalize(record)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, m.key)
	mac.Write(canonical)
	return hmac.Equal(mac.Sum(nil), sig)
}

// VerifyEpisode — удобный шорткат для потребителей эпизодов: подпись
// достается из context, запись проверяется целиком.
func (m *Manager) VerifyEpisode(e *domain.Episode) bool {
	if e == nil {
		return false
	}
	sig := e.Signature()
	if sig == "" {
		return false
	}
	return m.VerifyData(e.Record(), sig)
}

// Canonicalize приводит запись к детерминированным байтам:
//  1. нормализация типов через json round-trip (int64 и float64 с одним
//     значением дают одинаковый результат — важно после перечитывания из стора);
//  2. удаление _signature на верхнем уровне и внутри context;
//  3. повторный marshal — encoding/json сортирует ключи map лексикографически.
func Canonicalize(record map[string]any) ([]byte, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var normalized map[string]any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, err
	}

	delete(normalized, domain.SignatureKey)
	if ctx, ok := normalized["context"].(map[string]any); ok {
		delete(ctx, domain.SignatureKey)
	}

	return json.Marshal(normalized)
}
