// Package testutil holds the small corpora shared by the tests of this module.
package testutil

// CharCorpus returns four sentences split in characters.
// With a minimum count of 2 it yields 29 qualifying characters, and "我" occurs exactly twice.
func CharCorpus() [][]string {
	return [][]string{
		{"我", "们", "变", "而", "以", "书", "会", "友", "，", "以", "书", "结", "缘", "，", "把", "欧", "美", "、", "港", "台", "流", "行", "的", "食", "品", "类", "图", "谱", "、", "画", "册", "、", "工", "具", "书", "汇", "集", "一", "堂", "。"},
		{"为", "了", "跟", "踪", "国", "际", "最", "新", "食", "品", "工", "艺", "、", "流", "行", "趋", "势", "，", "大", "量", "搜", "集", "海", "外", "专", "业", "书", "刊", "资", "料", "是", "提", "高", "技", "艺", "的", "捷", "径", "。"},
		{"其", "中", "线", "装", "古", "籍", "逾", "千", "册", "；", "民", "国", "出", "版", "物", "几", "百", "种", "；", "珍", "本", "四", "册", "、", "稀", "见", "本", "四", "百", "余", "册", "，", "出", "版", "时", "间", "跨", "越", "三", "百", "余", "年", "。"},
		{"有", "的", "古", "木", "交", "柯", "，", "春", "机", "荣", "欣", "，", "从", "诗", "人", "句", "中", "得", "之", "，", "而", "入", "画", "中", "，", "观", "之", "令", "人", "心", "驰", "。", "我"},
	}
}

// TaggedCorpus returns character sequences with their BIO labels (7 distinct labels).
func TaggedCorpus() (x, y [][]string) {
	x = [][]string{
		{"我", "们", "变", "而", "以", "书", "会", "友", "，", "以", "书", "结", "缘", "，", "把", "欧", "美", "、", "港", "台", "流", "行", "的", "食", "品", "类", "图", "谱", "、", "画", "册", "、", "工", "具", "书", "汇", "集", "一", "堂", "。"},
		{"鲁", "宾", "明", "确", "指", "出", "，", "对", "政", "府", "的", "这", "种", "指", "控", "完", "全", "没", "有", "事", "实", "根", "据", "，", "美", "国", "政", "府", "不", "想", "也", "没", "有", "向", "中", "国", "转", "让", "敏", "感", "技", "术", "，", "事", "实", "真", "相", "总", "有", "一", "天", "会", "大", "白", "于", "天", "下", "；", "众", "议", "院", "的", "这", "种", "做", "法", "令", "人", "“", "非", "常", "失", "望", "”", "，", "将", "使", "美", "国", "的", "商", "业", "卫", "星", "产", "业", "受", "到", "威", "胁", "，", "使", "美", "国", "的", "竞", "争", "力", "受", "到", "损", "害", "。"},
		{"今", "年", "年", "初", "，", "党", "中", "央", "、", "国", "务", "院", "根", "据", "国", "内", "外", "经", "济", "形", "势", "的", "变", "化", "，", "及", "时", "作", "出", "扩", "大", "内", "需", "、", "保", "持", "经", "济", "持", "续", "快", "速", "增", "长", "的", "重", "大", "决", "策", "。"},
		{"我", "们", "变", "而", "以", "书", "会", "友", "，", "以", "书", "结", "缘", "，", "把", "欧", "美", "、", "港", "台", "流", "行", "的", "食", "品", "类", "图", "谱", "、", "画", "册", "、", "工", "具", "书", "汇", "集", "一", "堂", "。"},
		{"我", "们", "变", "而", "以", "书", "会", "友", "，", "以", "书", "结", "缘", "，", "把", "欧", "美", "、", "港", "台", "流", "行", "的", "食", "品", "类", "图", "谱", "、", "画", "册", "、", "工", "具", "书", "汇", "集", "一", "堂", "。"},
		{"为", "了", "跟", "踪", "国", "际", "最", "新", "食", "品", "工", "艺", "、", "流", "行", "趋", "势", "，", "大", "量", "搜", "集", "海", "外", "专", "业", "书", "刊", "资", "料", "是", "提", "高", "技", "艺", "的", "捷", "径", "。"},
		{"其", "中", "线", "装", "古", "籍", "逾", "千", "册", "；", "民", "国", "出", "版", "物", "几", "百", "种", "；", "珍", "本", "四", "册", "、", "稀", "见", "本", "四", "百", "余", "册", "，", "出", "版", "时", "间", "跨", "越", "三", "百", "余", "年", "。"},
	}
	y = [][]string{
		{"O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "B-LOC", "B-LOC", "O", "B-LOC", "B-LOC", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O"},
		{"B-PER", "I-PER", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "B-LOC", "I-LOC", "O", "O", "O", "O", "O", "O", "O", "O", "B-LOC", "I-LOC", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "B-ORG", "I-ORG", "I-ORG", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "B-LOC", "I-LOC", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "B-LOC", "I-LOC", "O", "O", "O", "O", "O", "O", "O", "O", "O"},
		{"O", "O", "O", "O", "O", "B-ORG", "I-ORG", "I-ORG", "O", "B-ORG", "I-ORG", "I-ORG", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O"},
		{"O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "B-LOC", "B-LOC", "O", "B-LOC", "B-LOC", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O"},
		{"O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "B-LOC", "B-LOC", "O", "B-LOC", "B-LOC", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O"},
		{"O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O"},
		{"O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O", "O"},
	}
	return x, y
}
