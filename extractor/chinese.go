package extractor

// 中文数字表。规则：数字乘单位后求和，开头的 十 记作 10
var chineseDigits = map[rune]int{
	'零': 0, '一': 1, '二': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

var chineseUnits = map[rune]int{
	'十': 10, '百': 100, '千': 1000,
}

// parseChineseNumeral 把 二十三 这样的中文数字转成整数。
// 无法解析时返回 false
func parseChineseNumeral(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	total := 0
	pending := -1
	for _, r := range s {
		if d, ok := chineseDigits[r]; ok {
			if pending >= 0 {
				// 两个数字连写不是合法的数
				return 0, false
			}
			pending = d
			continue
		}
		if unit, ok := chineseUnits[r]; ok {
			if pending < 0 {
				// 十五 这样的开头单位按 1 个单位计
				pending = 1
			}
			total += pending * unit
			pending = -1
			continue
		}
		return 0, false
	}
	if pending >= 0 {
		total += pending
	}
	return total, true
}
