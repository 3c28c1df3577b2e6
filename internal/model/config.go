package model

// Setting is a runtime-editable key/value pair.
type Setting struct {
	Key   string `gorm:"primaryKey" bson:"_id"`
	Value string `gorm:"type:text" bson:"value"`
}

const (
	SettingTelegramBotToken = "telegram_bot_token"
	SettingTelegramChatID   = "telegram_chat_id"
)
