// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package data

import (
	"sort"
)

const (
	IndustryCement        = "Cement"
	IndustryFood          = "Food"
	IndustryPlastics      = "Plastics"
	IndustryTextiles      = "Textiles"
	IndustryElectricMach  = "Electric Machinery"
	IndustryCable         = "Electrical and Cable"
	IndustrySteel         = "Iron and Steel"
	IndustryRubber        = "Rubber"
	IndustryAutomobile    = "Automobile"
	IndustrySemiconductor = "Semiconductor"
	IndustryComputer      = "Computer and Peripheral Equipment"
	IndustryComponents    = "Electronic Parts and Components"
	IndustryOptoelectric  = "Optoelectronic"
	IndustryCommunication = "Communications and Internet"
	IndustryDistribution  = "Electronic Products Distribution"
	IndustryOtherElec     = "Other Electronic"
	IndustryShipping      = "Shipping and Transportation"
	IndustryTrading       = "Trading and Consumer Goods"
	IndustryOilGas        = "Oil, Gas and Electricity"
	IndustryConstruction  = "Building Material and Construction"
	IndustryOther         = "Other"
)

// Universe is an ordered set of stocks. Order is by stock code and defines
// the row/column order of every matrix and vector in the pipeline.
type Universe struct {
	stocks []Stock
	index  map[string]int
}

// NewUniverse creates a universe from stocks, sorting them by code and
// dropping duplicates
func NewUniverse(stocks []Stock) *Universe {
	sorted := make([]Stock, 0, len(stocks))
	seen := make(map[string]bool, len(stocks))
	for _, s := range stocks {
		if seen[s.Code] {
			continue
		}
		seen[s.Code] = true
		sorted = append(sorted, s)
	}

	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })

	u := &Universe{
		stocks: sorted,
		index:  make(map[string]int, len(sorted)),
	}
	for idx, s := range sorted {
		u.index[s.Code] = idx
	}
	return u
}

// Len returns the number of stocks in the universe
func (u *Universe) Len() int {
	return len(u.stocks)
}

// Codes returns the stock codes in universe order
func (u *Universe) Codes() []string {
	codes := make([]string, len(u.stocks))
	for idx, s := range u.stocks {
		codes[idx] = s.Code
	}
	return codes
}

// Stocks returns a copy of the stocks in universe order
func (u *Universe) Stocks() []Stock {
	out := make([]Stock, len(u.stocks))
	copy(out, u.stocks)
	return out
}

// Index returns the position of code in the universe or -1
func (u *Universe) Index(code string) int {
	if idx, ok := u.index[code]; ok {
		return idx
	}
	return -1
}

// Stock looks up a stock by its exchange code
func (u *Universe) Stock(code string) (Stock, error) {
	idx, ok := u.index[code]
	if !ok {
		return Stock{}, ErrNotFound
	}
	return u.stocks[idx], nil
}

// Contains reports whether code is part of the universe
func (u *Universe) Contains(code string) bool {
	_, ok := u.index[code]
	return ok
}

// DefaultUniverse returns the 74 TWSE listed equities the models are trained on
func DefaultUniverse() *Universe {
	return NewUniverse(twse74)
}

var twse74 = []Stock{
	{Code: "1101", Name: "Taiwan Cement", Industry: IndustryCement},
	{Code: "1102", Name: "Asia Cement", Industry: IndustryCement},
	{Code: "1216", Name: "Uni-President Enterprises", Industry: IndustryFood},
	{Code: "1229", Name: "Lien Hwa Industrial", Industry: IndustryFood},
	{Code: "1301", Name: "Formosa Plastics", Industry: IndustryPlastics},
	{Code: "1303", Name: "Nan Ya Plastics", Industry: IndustryPlastics},
	{Code: "1326", Name: "Formosa Chemicals & Fibre", Industry: IndustryPlastics},
	{Code: "1402", Name: "Far Eastern New Century", Industry: IndustryTextiles},
	{Code: "1476", Name: "Eclat Textile", Industry: IndustryTextiles},
	{Code: "1504", Name: "TECO Electric & Machinery", Industry: IndustryElectricMach},
	{Code: "1590", Name: "Airtac International", Industry: IndustryElectricMach},
	{Code: "1605", Name: "Walsin Lihwa", Industry: IndustryCable},
	{Code: "2002", Name: "China Steel", Industry: IndustrySteel},
	{Code: "2027", Name: "Ta Chen Stainless Pipe", Industry: IndustrySteel},
	{Code: "2049", Name: "Hiwin Technologies", Industry: IndustryElectricMach},
	{Code: "2105", Name: "Cheng Shin Rubber", Industry: IndustryRubber},
	{Code: "2201", Name: "Yulon Motor", Industry: IndustryAutomobile},
	{Code: "2207", Name: "Hotai Motor", Industry: IndustryAutomobile},
	{Code: "2301", Name: "Lite-On Technology", Industry: IndustryComputer},
	{Code: "2303", Name: "United Microelectronics", Industry: IndustrySemiconductor},
	{Code: "2308", Name: "Delta Electronics", Industry: IndustryComponents},
	{Code: "2317", Name: "Hon Hai Precision", Industry: IndustryOtherElec},
	{Code: "2324", Name: "Compal Electronics", Industry: IndustryComputer},
	{Code: "2327", Name: "Yageo", Industry: IndustryComponents},
	{Code: "2330", Name: "Taiwan Semiconductor Manufacturing", Industry: IndustrySemiconductor},
	{Code: "2344", Name: "Winbond Electronics", Industry: IndustrySemiconductor},
	{Code: "2345", Name: "Accton Technology", Industry: IndustryCommunication},
	{Code: "2347", Name: "Synnex Technology", Industry: IndustryDistribution},
	{Code: "2352", Name: "Qisda", Industry: IndustryComputer},
	{Code: "2353", Name: "Acer", Industry: IndustryComputer},
	{Code: "2356", Name: "Inventec", Industry: IndustryComputer},
	{Code: "2357", Name: "Asustek Computer", Industry: IndustryComputer},
	{Code: "2360", Name: "Chroma ATE", Industry: IndustryOtherElec},
	{Code: "2371", Name: "Tatung", Industry: IndustryElectricMach},
	{Code: "2376", Name: "Giga-Byte Technology", Industry: IndustryComputer},
	{Code: "2377", Name: "Micro-Star International", Industry: IndustryComputer},
	{Code: "2379", Name: "Realtek Semiconductor", Industry: IndustrySemiconductor},
	{Code: "2382", Name: "Quanta Computer", Industry: IndustryComputer},
	{Code: "2383", Name: "Elite Material", Industry: IndustryComponents},
	{Code: "2395", Name: "Advantech", Industry: IndustryComputer},
	{Code: "2408", Name: "Nanya Technology", Industry: IndustrySemiconductor},
	{Code: "2409", Name: "AU Optronics", Industry: IndustryOptoelectric},
	{Code: "2412", Name: "Chunghwa Telecom", Industry: IndustryCommunication},
	{Code: "2454", Name: "MediaTek", Industry: IndustrySemiconductor},
	{Code: "2474", Name: "Catcher Technology", Industry: IndustryOtherElec},
	{Code: "2603", Name: "Evergreen Marine", Industry: IndustryShipping},
	{Code: "2609", Name: "Yang Ming Marine Transport", Industry: IndustryShipping},
	{Code: "2610", Name: "China Airlines", Industry: IndustryShipping},
	{Code: "2615", Name: "Wan Hai Lines", Industry: IndustryShipping},
	{Code: "2618", Name: "EVA Airways", Industry: IndustryShipping},
	{Code: "2912", Name: "President Chain Store", Industry: IndustryTrading},
	{Code: "3008", Name: "Largan Precision", Industry: IndustryOptoelectric},
	{Code: "3017", Name: "Asia Vital Components", Industry: IndustryComputer},
	{Code: "3023", Name: "Sinbon Electronics", Industry: IndustryComponents},
	{Code: "3034", Name: "Novatek Microelectronics", Industry: IndustrySemiconductor},
	{Code: "3037", Name: "Unimicron Technology", Industry: IndustryComponents},
	{Code: "3045", Name: "Taiwan Mobile", Industry: IndustryCommunication},
	{Code: "3231", Name: "Wistron", Industry: IndustryComputer},
	{Code: "3443", Name: "Global Unichip", Industry: IndustrySemiconductor},
	{Code: "3481", Name: "Innolux", Industry: IndustryOptoelectric},
	{Code: "3533", Name: "Lotes", Industry: IndustryComponents},
	{Code: "3653", Name: "Jentech Precision", Industry: IndustryComponents},
	{Code: "3702", Name: "WPG Holdings", Industry: IndustryDistribution},
	{Code: "4904", Name: "Far EasTone Telecommunications", Industry: IndustryCommunication},
	{Code: "4938", Name: "Pegatron", Industry: IndustryComputer},
	{Code: "4958", Name: "Zhen Ding Technology", Industry: IndustryComponents},
	{Code: "5871", Name: "Chailease Holding", Industry: IndustryOther},
	{Code: "6505", Name: "Formosa Petrochemical", Industry: IndustryOilGas},
	{Code: "8046", Name: "Nan Ya Printed Circuit Board", Industry: IndustryComponents},
	{Code: "9904", Name: "Pou Chen", Industry: IndustryOther},
	{Code: "9910", Name: "Feng Tay Enterprises", Industry: IndustryOther},
	{Code: "9921", Name: "Giant Manufacturing", Industry: IndustryOther},
	{Code: "9941", Name: "Yulon Finance", Industry: IndustryOther},
	{Code: "9945", Name: "Ruentex Development", Industry: IndustryConstruction},
}
