// Package notification содержит уведомления, порождаемые движком жизненного
// цикла: об отсутствии, о превышении лимита пропусков и о переводе в основной состав.
//
// Доставка (push, Telegram) - внешняя. Движок только формирует Message и
// передаёт её в Sender, не дожидаясь результата.
package notification

import (
	"context"
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION TYPE
// ══════════════════════════════════════════════════════════════════════════════

// Type определяет тип уведомления.
type Type string

const (
	// TypeAbsence - зафиксировано отсутствие.
	TypeAbsence Type = "absence"
	// TypeDemotion - превышен лимит пропусков.
	TypeDemotion Type = "demotion"
	// TypePromotion - ученик переведён в основной состав.
	TypePromotion Type = "promotion"
	// TypeGeneral - прочие уведомления.
	TypeGeneral Type = "general"
)

// RoutingKey возвращает ключ маршрутизации для брокера.
func (t Type) RoutingKey() string {
	return "notification." + string(t)
}

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE
// ══════════════════════════════════════════════════════════════════════════════

// Message - запрос на доставку уведомления одному ученику.
type Message struct {
	StudentID string            `json:"studentId"`
	Type      Type              `json:"type"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data"`
	CreatedAt time.Time         `json:"createdAt"`
}

func newMessage(studentID string, t Type, title, body string, data map[string]string) Message {
	if data == nil {
		data = make(map[string]string)
	}
	data["type"] = string(t)
	data["studentId"] = studentID
	return Message{
		StudentID: studentID,
		Type:      t,
		Title:     title,
		Body:      body,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
}

// Absence формирует уведомление об отсутствии за день date.
func Absence(studentID, date string) Message {
	return newMessage(studentID, TypeAbsence,
		"⚠️ تسجيل غياب",
		fmt.Sprintf("تم تسجيل غيابك ليوم %s. إذا كنت حاضراً تواصل مع المعلم.", date),
		map[string]string{"date": date},
	)
}

// Demotion формирует уведомление о превышении лимита.
func Demotion(studentID, reason string) Message {
	return newMessage(studentID, TypeDemotion,
		"🔴 تنبيه تجاوز الحد",
		reason+". قد يتم نقلك إلى حلقة الاحتياط.",
		map[string]string{"reason": reason},
	)
}

// Promotion формирует поздравление с переводом в халаку groupName.
func Promotion(studentID, groupID, groupName string) Message {
	return newMessage(studentID, TypePromotion,
		"🎉 تهانينا",
		fmt.Sprintf("تم نقلك إلى الحلقة الأساسية (%s). بارك الله فيك!", groupName),
		map[string]string{"groupId": groupID},
	)
}

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// Sender доставляет одно уведомление. Ошибка означает неудачу только этого уведомления.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Notifier принимает уведомления для фоновой доставки.
// Notify никогда не блокируется на доставке и не возвращает ошибок.
type Notifier interface {
	Notify(msg Message)
}
