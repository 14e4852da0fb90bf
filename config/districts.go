package config

import "strings"

// City lists the districts the classifier knows for one top-level city.
type City struct {
	Name      string
	Districts []string
}

// SupportedCities is the closed district enumeration used for full-text lookup.
var SupportedCities = []City{
	{
		Name: "台北市",
		Districts: []string{
			"中正區", "大同區", "中山區", "松山區", "大安區", "萬華區",
			"信義區", "士林區", "北投區", "內湖區", "南港區", "文山區",
		},
	},
	{
		Name: "新北市",
		Districts: []string{
			"板橋區", "三重區", "中和區", "永和區", "新莊區", "新店區", "樹林區",
			"鶯歌區", "三峽區", "淡水區", "汐止區", "瑞芳區", "土城區", "蘆洲區",
			"五股區", "泰山區", "林口區", "深坑區", "石碇區", "坪林區", "烏來區",
			"金山區", "萬里區", "石門區", "三芝區", "貢寮區", "平溪區", "雙溪區", "八里區",
		},
	},
	{
		Name: "桃園市",
		Districts: []string{
			"桃園區", "中壢區", "大溪區", "楊梅區", "蘆竹區", "大園區", "龜山區",
			"八德區", "龍潭區", "平鎮區", "新屋區", "觀音區", "復興區",
		},
	},
}

// TopLevelCities are the city names recognized at the start of an address.
var TopLevelCities = []string{
	"台北市", "新北市", "桃園市", "台中市", "台南市", "高雄市", "基隆市", "新竹市", "嘉義市",
	"新竹縣", "苗栗縣", "彰化縣", "南投縣", "雲林縣", "嘉義縣", "屏東縣", "宜蘭縣", "花蓮縣", "台東縣",
}

var districtCity = func() map[string]string {
	m := make(map[string]string)
	for _, c := range SupportedCities {
		for _, d := range c.Districts {
			m[d] = c.Name
		}
	}
	return m
}()

// NormalizeCity folds the traditional 臺 variant so names compare equal.
func NormalizeCity(name string) string {
	return strings.ReplaceAll(name, "臺", "台")
}

// CityOfDistrict returns the city owning a known district.
func CityOfDistrict(district string) (string, bool) {
	c, ok := districtCity[district]
	return c, ok
}

// KnownDistricts returns every enumerated district in declaration order.
func KnownDistricts() []string {
	var out []string
	for _, c := range SupportedCities {
		out = append(out, c.Districts...)
	}
	return out
}
