package main

// Category maps a dork category id to its display label and query template.
// Template contains a {target} placeholder.
type Category struct {
	ID       string
	Label    string
	Template string
}

const targetPlaceholder = "{target}"

// categoryTable is the ordered category list. Generated batches follow this order.
var categoryTable = []Category{
	{ID: "basic_info", Label: "Basic Information", Template: `"{target}"`},
	{ID: "files", Label: "Sensitive Files", Template: `filetype:pdf | filetype:doc | filetype:xlsx {target}`},
	{ID: "directories", Label: "Exposed Directories", Template: `intitle:"index of" {target}`},
	{ID: "login_pages", Label: "Login Pages", Template: `(inurl:login | inurl:signin | intitle:Login) {target}`},
	{ID: "vulnerabilities", Label: "Potential Vulnerabilities", Template: `(inurl:php?id= | inurl:index.php?id=) {target}`},
	{ID: "technologies", Label: "Technologies", Template: `inurl:wp-content | inurl:wp-includes {target}`},
	{ID: "social_media", Label: "Social Media", Template: `site:twitter.com {target}`},
	{ID: "email", Label: "Email Addresses", Template: `"@{target}"`},
	{ID: "subdomains", Label: "Subdomains", Template: `site:*.{target} -www`},
	{ID: "person_search", Label: "Person Search", Template: `{target} "curriculum vitae"`},
	{ID: "profiles", Label: "Profile Pages", Template: `{target} "profile"`},
	{ID: "images", Label: "Images", Template: `site:{target} filetype:png | filetype:jpg`},
	{ID: "news", Label: "News Articles", Template: `site:news {target}`},
	{ID: "academic", Label: "Academic/Publications", Template: `{target} filetype:pdf`},
}

// Categories returns a copy of the category table in declared order
func Categories() []Category {
	out := make([]Category, len(categoryTable))
	copy(out, categoryTable)
	return out
}

// lookupCategory returns the category with the given id
func lookupCategory(id string) (Category, bool) {
	for _, c := range categoryTable {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}
