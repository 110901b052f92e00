package model

import (
	"math"
	"time"

	"gorm.io/datatypes"
)

// 挂牌表列宽，写入前须校验
const (
	ListingModelMaxLen = 32            // model varchar(32)，按字符计
	ListingPriceMax    = math.MaxInt32 // price int4
)

// Listing 从帖子中抽取出的一条（型号, 价格）记录；写入后不可修改
type Listing struct {
	ID           uint64         `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID" json:"id"`
	Model        string         `gorm:"column:model;type:varchar(32);not null;index:idx_listing_model_posted,priority:1;comment:显卡型号" json:"model"`
	Price        int            `gorm:"column:price;type:int;not null;check:chk_listing_price,price > 0;comment:价格（整数）" json:"price"`
	SourceURL    string         `gorm:"column:source_url;type:text;not null;comment:原帖链接" json:"url"`
	PostedAt     time.Time      `gorm:"column:posted_at;type:timestamptz;not null;index:idx_listing_model_posted,priority:2;index;comment:原帖发布时间" json:"posted_at"`
	SourcePostID string         `gorm:"column:source_post_id;type:varchar(32);not null;uniqueIndex:uk_post_extract,priority:1;comment:原帖ID（去重键）" json:"source_post_id"`
	ExtractIndex int            `gorm:"column:extract_index;type:int;not null;default:0;uniqueIndex:uk_post_extract,priority:2;comment:同一帖子内的抽取序号" json:"-"`
	DealScore    *float64       `gorm:"column:deal_score;type:numeric(4,1);comment:派生评分（可空）" json:"deal_score,omitempty"`
	RawEntry     datatypes.JSON `gorm:"column:raw_entry;type:jsonb;comment:抽取服务原始返回" json:"-"`
	CreatedAt    time.Time      `gorm:"column:created_at;type:timestamptz;autoCreateTime;comment:入库时间" json:"created_at"`
}

// NotificationPreference 用户价格提醒订阅（增删改由外部服务负责，这里只读）
type NotificationPreference struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	UserID         uint64    `gorm:"column:user_id;type:bigint;not null;index;comment:用户ID"`
	UserEmail      string    `gorm:"column:user_email;type:varchar(256);comment:通知地址"`
	Model          string    `gorm:"column:gpu_model;type:varchar(32);not null;index;comment:关注型号"`
	PriceThreshold int       `gorm:"column:price_threshold;type:int;not null;comment:价格阈值"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;autoCreateTime;comment:创建时间"`
}

// IngestionRun 每次抓取运行的审计记录
type IngestionRun struct {
	ID         uint64         `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	RunUUID    string         `gorm:"column:run_uuid;type:varchar(64);uniqueIndex;not null;comment:运行ID"`
	Mode       string         `gorm:"column:mode;type:varchar(16);not null;comment:incremental/backfill"`
	StartedAt  time.Time      `gorm:"column:started_at;type:timestamptz;not null;comment:开始时间"`
	FinishedAt time.Time      `gorm:"column:finished_at;type:timestamptz;comment:结束时间"`
	Pages      int            `gorm:"column:pages;type:int;default:0;comment:拉取页数"`
	Candidates int            `gorm:"column:candidates;type:int;default:0;comment:送入抽取的帖子数"`
	Accepted   int            `gorm:"column:accepted;type:int;default:0;comment:入库条数"`
	Rejections datatypes.JSON `gorm:"column:rejections;type:jsonb;comment:各原因丢弃计数"`
	StopReason string         `gorm:"column:stop_reason;type:varchar(32);comment:停止原因"`
	Error      *string        `gorm:"column:error;type:text;comment:中断错误"`
}

func (Listing) TableName() string                { return "gpu_listings" }
func (NotificationPreference) TableName() string { return "user_notification_preferences" }
func (IngestionRun) TableName() string           { return "ingestion_runs" }
