package intent

// Fixed replies produced by the router itself.
const (
	ReplyMenu = "היי! אני נבי 🎨\n" +
		"אני יכול ליצור עבורך:\n" +
		"🎵 שיר - למשל \"שיר יום הולדת לאמא בסגנון רוק\"\n" +
		"🖼️ תמונה - למשל \"תמונה של חתול על הירח\"\n" +
		"🎬 סרטון - שלחו תמונה וכתבו \"תזיז את האנשים\"\n" +
		"מה תרצו ליצור?"

	ReplyPhotoWhatToDo = "קיבלתי את התמונה 📸 מה לעשות איתה?\n" +
		"אפשר להוסיף ברכה או כיתוב, לשנות סגנון, או להפוך אותה לסרטון קצר."

	ReplyVideoNeedsPhoto = "עדיין אין לי אפשרות ליצור סרטון מטקסט בלבד. שלחו תמונה ואני אזיז אותה 🎬"

	ReplyApology = "סליחה, משהו השתבש אצלי 🙏 אפשר לנסות שוב?"
)
