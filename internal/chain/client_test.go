package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/hellarekt/perpbot/internal/ports"
)

func testConfig() Config {
	return Config{
		RPCURL:       "http://127.0.0.1:8545",
		ChainID:      31337,
		PerpsAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		PoolAddress:  "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512",
		TokenAddress: "0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0",
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("生成测试私钥失败: %v", err)
	}
	// http RPC 连接是惰性建立的，构造客户端不需要节点在线
	c, err := NewClient(testConfig(), key)
	if err != nil {
		t.Fatalf("创建客户端失败: %v", err)
	}
	return c
}

// TestNewClient_Validation 测试构造参数校验
func TestNewClient_Validation(t *testing.T) {
	key, _ := crypto.GenerateKey()

	if _, err := NewClient(testConfig(), nil); err == nil {
		t.Error("缺少私钥应该返回错误")
	}

	cfg := testConfig()
	cfg.PerpsAddress = "not-an-address"
	if _, err := NewClient(cfg, key); err == nil {
		t.Error("无效合约地址应该返回错误")
	}
}

// TestNewClient_Defaults 测试轮询默认值
func TestNewClient_Defaults(t *testing.T) {
	c := newTestClient(t)

	if c.cfg.ReceiptPollInterval != defaultReceiptPollInterval {
		t.Errorf("期望默认轮询间隔 %v，得到 %v", defaultReceiptPollInterval, c.cfg.ReceiptPollInterval)
	}
	if c.cfg.ReceiptTimeout != defaultReceiptTimeout {
		t.Errorf("期望默认超时 %v，得到 %v", defaultReceiptTimeout, c.cfg.ReceiptTimeout)
	}
	if c.SignerAddress() == "" {
		t.Error("签名地址不应该为空")
	}
}

// TestSubmitApproval_Validation 测试授权参数校验（不触达网络）
func TestSubmitApproval_Validation(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if _, err := c.SubmitApproval(ctx, "unknown", decimal.NewFromInt(100)); err == nil {
		t.Error("未知授权目标应该返回错误")
	}
	if _, err := c.SubmitApproval(ctx, ports.ApproveForPerps, decimal.Zero); err == nil {
		t.Error("零授权金额应该返回错误")
	}
	if _, err := c.SubmitApproval(ctx, ports.ApproveForPerps, decimal.NewFromInt(-5)); err == nil {
		t.Error("负授权金额应该返回错误")
	}
}

// TestSubmitAction_Validation 测试动作参数校验（不触达网络）
func TestSubmitAction_Validation(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if _, err := c.SubmitAction(ctx, "unknown", nil); err == nil {
		t.Error("未知动作类型应该返回错误")
	}
	if _, err := c.SubmitAction(ctx, ports.ActionOpenPosition, "wrong"); err == nil {
		t.Error("参数类型不匹配应该返回错误")
	}
	if _, err := c.SubmitAction(ctx, ports.ActionClosePosition, ports.ClosePositionArgs{
		PositionID: "not-a-number",
		ClosePrice: decimal.NewFromInt(65000),
	}); err == nil {
		t.Error("无效仓位 ID 应该返回错误")
	}
}

// TestReads_Validation 测试读取入口的地址校验（不触达网络）
func TestReads_Validation(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if _, err := c.GetOwnedPositionIDs(ctx, "bogus"); err == nil {
		t.Error("无效账户地址应该返回错误")
	}
	if _, err := c.GetUserPoolShare(ctx, "bogus"); err == nil {
		t.Error("无效账户地址应该返回错误")
	}
	if _, err := c.CollateralBalance(ctx, "bogus"); err == nil {
		t.Error("无效账户地址应该返回错误")
	}

	// 无法解析的仓位 ID 表示记录不存在，不是错误
	p, err := c.GetPositionByID(ctx, "not-a-number")
	if err != nil {
		t.Errorf("无法解析的 ID 不应该返回错误: %v", err)
	}
	if p != nil {
		t.Errorf("无法解析的 ID 应该返回 nil 仓位，得到 %+v", p)
	}
}

// TestUnits_RoundTrip 测试定点数转换
func TestUnits_RoundTrip(t *testing.T) {
	cases := []struct {
		in   decimal.Decimal
		want *big.Int
	}{
		{decimal.NewFromInt(1), big.NewInt(1000000)},
		{decimal.NewFromFloat(0.5), big.NewInt(500000)},
		{decimal.NewFromFloat(65000.123456), big.NewInt(65000123456)},
		// 超出 6 位的小数截断
		{decimal.NewFromFloat(0.1234567), big.NewInt(123456)},
	}
	for _, tc := range cases {
		got := toUnits(tc.in)
		if got.Cmp(tc.want) != 0 {
			t.Errorf("toUnits(%s) = %s，期望 %s", tc.in, got, tc.want)
		}
	}

	back := fromUnits(big.NewInt(65000123456))
	if !back.Equal(decimal.NewFromFloat(65000.123456)) {
		t.Errorf("fromUnits 结果 %s，期望 65000.123456", back)
	}
	if !fromUnits(nil).IsZero() {
		t.Error("fromUnits(nil) 应该为 0")
	}
}
