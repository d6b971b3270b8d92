package cost

import (
	"reflect"
	"testing"

	"github.com/hitoshi/hcadmin/internal/hcloud"
)

func testPricing() *hcloud.Pricing {
	p := &hcloud.Pricing{Currency: "EUR"}
	p.Volume.PricePerGBMonth = hcloud.Amount{Gross: "0.0476", Net: "0.0400"}
	p.FloatingIP.PriceMonthly = hcloud.Amount{Gross: "1.19", Net: "1.00"}
	p.ServerTypes = []hcloud.PricingServerType{
		{
			ID:   1,
			Name: "cx11",
			Prices: []hcloud.Price{
				{Location: "fsn1", PriceMonthly: hcloud.Amount{Gross: "4.15", Net: "3.49"}},
				{Location: "nbg1", PriceMonthly: hcloud.Amount{Gross: "4.51", Net: "3.79"}},
			},
		},
	}
	return p
}

func serverAt(name, serverType, location string, embeddedPrices []hcloud.Price) hcloud.Server {
	return hcloud.Server{
		ID:     1,
		Name:   name,
		Status: "running",
		ServerType: hcloud.ServerType{
			ID:     1,
			Name:   serverType,
			Prices: embeddedPrices,
		},
		Datacenter: hcloud.Datacenter{
			ID:       1,
			Name:     location + "-dc8",
			Location: hcloud.Location{ID: 1, Name: location},
		},
	}
}

func TestCalculate_ServerPriceFromEmbeddedList(t *testing.T) {
	servers := []hcloud.Server{
		serverAt("web-1", "cx11", "fsn1", []hcloud.Price{
			{Location: "fsn1", PriceMonthly: hcloud.Amount{Gross: "4.15", Net: "3.49"}},
		}),
	}

	est := Calculate(servers, nil, nil, testPricing())
	if est.ServerMonthly != 4.15 {
		t.Errorf("ServerMonthly = %v, want 4.15", est.ServerMonthly)
	}
	if est.TotalMonthly != 4.15 {
		t.Errorf("TotalMonthly = %v, want 4.15", est.TotalMonthly)
	}
	if len(est.UnpricedServers) != 0 {
		t.Errorf("UnpricedServers = %v, want 空", est.UnpricedServers)
	}
}

func TestCalculate_ServerPriceFallbackToCatalog(t *testing.T) {
	// 埋め込み価格表にロケーションがない場合はカタログで解決する
	servers := []hcloud.Server{
		serverAt("web-2", "cx11", "nbg1", nil),
	}

	est := Calculate(servers, nil, nil, testPricing())
	if est.ServerMonthly != 4.51 {
		t.Errorf("ServerMonthly = %v, want 4.51（カタログフォールバック）", est.ServerMonthly)
	}
}

func TestCalculate_CatalogFallbackMatchesByID(t *testing.T) {
	// カタログ照合はサーバータイプIDで行う。名前が変わっていてもIDが
	// 一致すれば解決し、名前だけ一致するエントリでは解決しない。
	nbg1 := hcloud.Datacenter{
		ID:       2,
		Name:     "nbg1-dc3",
		Location: hcloud.Location{ID: 2, Name: "nbg1"},
	}
	servers := []hcloud.Server{
		{
			ID:         10,
			Name:       "renamed-type",
			Status:     "running",
			ServerType: hcloud.ServerType{ID: 1, Name: "cx11-legacy"},
			Datacenter: nbg1,
		},
		{
			ID:         11,
			Name:       "same-name-other-id",
			Status:     "running",
			ServerType: hcloud.ServerType{ID: 99, Name: "cx11"},
			Datacenter: nbg1,
		},
	}

	est := Calculate(servers, nil, nil, testPricing())
	if est.ServerMonthly != 4.51 {
		t.Errorf("ServerMonthly = %v, want 4.51（ID一致のエントリで解決）", est.ServerMonthly)
	}
	if !reflect.DeepEqual(est.UnpricedServers, []string{"same-name-other-id"}) {
		t.Errorf("UnpricedServers = %v, want [same-name-other-id]", est.UnpricedServers)
	}
}

func TestCalculate_UnpricedServerContributesZero(t *testing.T) {
	servers := []hcloud.Server{
		serverAt("priced", "cx11", "fsn1", nil),
		serverAt("mystery", "cx99", "hel1", nil),
	}

	est := Calculate(servers, nil, nil, testPricing())
	if est.ServerMonthly != 4.15 {
		t.Errorf("ServerMonthly = %v, want 4.15（未解決サーバーは0円計上）", est.ServerMonthly)
	}
	if !reflect.DeepEqual(est.UnpricedServers, []string{"mystery"}) {
		t.Errorf("UnpricedServers = %v, want [mystery]", est.UnpricedServers)
	}
}

func TestCalculate_VolumeFormula(t *testing.T) {
	// 1024GiBのボリューム: (1024/1024) * 0.0476 = 0.0476
	volumes := []hcloud.Volume{
		{ID: 1, Name: "data", Size: 1024, Status: "available"},
	}

	est := Calculate(nil, volumes, nil, testPricing())
	if est.VolumeMonthly != 0.0476 {
		t.Errorf("VolumeMonthly = %v, want 0.0476（内訳は丸めない）", est.VolumeMonthly)
	}
	// 丸めは合計でのみ行う
	if est.TotalMonthly != 0.05 {
		t.Errorf("TotalMonthly = %v, want 0.05", est.TotalMonthly)
	}
}

func TestCalculate_FloatingIPFlatRate(t *testing.T) {
	// ipv4/ipv6種別によらず1件1.19
	fips := []hcloud.FloatingIP{
		{ID: 1, IP: "192.0.2.10", Type: "ipv4"},
		{ID: 2, IP: "2001:db8::1", Type: "ipv6"},
	}

	est := Calculate(nil, nil, fips, testPricing())
	if est.FloatingIPTotal != 2.38 {
		t.Errorf("FloatingIPTotal = %v, want 2.38", est.FloatingIPTotal)
	}
	if est.TotalMonthly != 2.38 {
		t.Errorf("TotalMonthly = %v, want 2.38", est.TotalMonthly)
	}
}

func TestCalculate_TotalRoundedAtAggregateOnly(t *testing.T) {
	servers := []hcloud.Server{
		serverAt("web-1", "cx11", "fsn1", nil),
	}
	volumes := []hcloud.Volume{
		{ID: 1, Name: "data", Size: 512, Status: "available"}, // (512/1024)*0.0476 = 0.0238
	}
	fips := []hcloud.FloatingIP{
		{ID: 1, IP: "192.0.2.10", Type: "ipv4"},
	}

	est := Calculate(servers, volumes, fips, testPricing())
	// 4.15 + 0.0238 + 1.19 = 5.3638 → 5.36
	if est.TotalMonthly != 5.36 {
		t.Errorf("TotalMonthly = %v, want 5.36", est.TotalMonthly)
	}
	if est.VolumeMonthly != 0.0238 {
		t.Errorf("VolumeMonthly = %v, want 0.0238（内訳は丸めない）", est.VolumeMonthly)
	}
}

func TestCalculate_Pure(t *testing.T) {
	servers := []hcloud.Server{serverAt("web-1", "cx11", "fsn1", nil)}
	volumes := []hcloud.Volume{{ID: 1, Name: "data", Size: 100, Status: "available"}}
	fips := []hcloud.FloatingIP{{ID: 1, IP: "192.0.2.10", Type: "ipv4"}}
	pricing := testPricing()

	first := Calculate(servers, volumes, fips, pricing)
	second := Calculate(servers, volumes, fips, pricing)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("同一入力で結果が異なる: %+v vs %+v", first, second)
	}
}

func TestCalculate_EmptyInputs(t *testing.T) {
	est := Calculate(nil, nil, nil, testPricing())
	if est.TotalMonthly != 0 {
		t.Errorf("TotalMonthly = %v, want 0", est.TotalMonthly)
	}
	if est.Currency != "EUR" {
		t.Errorf("Currency = %q, want EUR", est.Currency)
	}
}

func TestCalculate_NilPricing(t *testing.T) {
	// 料金カタログがない場合もパニックせず、全サーバーを未解決として扱う
	servers := []hcloud.Server{serverAt("web-1", "cx11", "fsn1", nil)}
	est := Calculate(servers, nil, nil, nil)
	if est.TotalMonthly != 0 {
		t.Errorf("TotalMonthly = %v, want 0", est.TotalMonthly)
	}
	if len(est.UnpricedServers) != 1 {
		t.Errorf("UnpricedServers = %v, want [web-1]", est.UnpricedServers)
	}
}
