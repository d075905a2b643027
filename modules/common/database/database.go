package database

import (
	"fmt"
	"log"

	"github.com/supabase-community/supabase-go"

	"omnipost-server/modules/common/config"
)

type Client struct {
	supabase *supabase.Client
}

// NewClient - Supabase 클라이언트 생성. 설정이 없으면 nil
func NewClient(cfg *config.Config) (*Client, error) {
	if !cfg.SupabaseEnabled() {
		return nil, nil
	}

	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}

	log.Printf("✅ Supabase client ready: %s", cfg.SupabaseURL)
	return &Client{supabase: supabaseClient}, nil
}

// InsertRow - 테이블에 행 하나 추가하고 응답 본문 반환
func (c *Client) InsertRow(table string, row interface{}) ([]byte, error) {
	data, _, err := c.supabase.From(table).
		Insert(row, false, "", "", "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return data, nil
}
