package domain

// AppSetting 键值配置项
//
// 覆盖静态配置文件中的同名键，队列管理器、投递 worker 与
// 清理任务在每个工作周期开始时重新读取，改动无需重启即生效。
type AppSetting struct {
	Key         string `json:"key" gorm:"primaryKey;type:varchar(100)"`
	Value       string `json:"value" gorm:"type:text;not null"`
	Description string `json:"description" gorm:"type:varchar(255)"`
}

// TableName 指定表名
func (AppSetting) TableName() string {
	return "app_setting"
}
